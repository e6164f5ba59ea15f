// Package pgstore provides a PostgreSQL implementation of intel.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/lookout/internal/intel"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lookout/internal/intel/pgstore")

//go:embed schema.sql
var schema string

// psql builds queries with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store persists pipeline state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store on the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const organizationColumns = "id, name, company_context, is_active, created_at"

// ActiveOrganizations returns all active organizations ordered by ID.
func (s *Store) ActiveOrganizations(ctx context.Context) ([]intel.Organization, error) {
	ctx, span := s.startSpan(ctx, "pgstore.ActiveOrganizations", "SELECT")
	defer span.End()

	query, args, err := psql.
		Select(organizationColumns).
		From("organizations").
		Where(sq.Eq{"is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("build query: %w", err))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query organizations: %w", err))
	}
	defer rows.Close()

	var orgs []intel.Organization
	for rows.Next() {
		var o intel.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CompanyContext, &o.Active, &o.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan organization: %w", err))
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate organizations: %w", err))
	}
	return orgs, nil
}

// Organization returns one organization by ID. Returns ok=false when the
// row does not exist.
func (s *Store) Organization(ctx context.Context, id int64) (*intel.Organization, bool, error) {
	ctx, span := s.startSpan(ctx, "pgstore.Organization", "SELECT")
	defer span.End()

	query, args, err := psql.
		Select(organizationColumns).
		From("organizations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("build query: %w", err))
	}

	var o intel.Organization
	err = s.pool.QueryRow(ctx, query, args...).
		Scan(&o.ID, &o.Name, &o.CompanyContext, &o.Active, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("scan organization: %w", err))
	}
	return &o, true, nil
}

// PendingArticles selects articles needing classification for org: no row
// for the pair yet, or a retryable (PENDING / FAILED%) row, published at or
// after the organization's creation watermark. Oldest publish time first so
// processing order is stable and resumable.
func (s *Store) PendingArticles(ctx context.Context, org *intel.Organization, limit int) ([]intel.Article, error) {
	ctx, span := s.startSpan(ctx, "pgstore.PendingArticles", "SELECT")
	defer span.End()

	builder := psql.
		Select("a.id", "a.title", "a.link", "a.summary", "a.date_published", "a.source", "a.date_added").
		From("articles a").
		LeftJoin("article_classifications ac ON ac.article_id = a.id AND ac.organization_id = ?", org.ID).
		Where(sq.Or{
			sq.Expr("ac.id IS NULL"),
			sq.Eq{"ac.status": string(intel.StatusPending)},
			sq.Like{"ac.status": "FAILED%"},
		}).
		OrderBy("a.date_published ASC")

	// A zero creation time means single-tenant mode: classify the whole
	// backlog instead of applying the watermark.
	if !org.CreatedAt.IsZero() {
		builder = builder.Where(sq.GtOrEq{"a.date_published": org.CreatedAt})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("build query: %w", err))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query pending articles: %w", err))
	}
	defer rows.Close()

	var articles []intel.Article
	for rows.Next() {
		var (
			a         intel.Article
			published *time.Time
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Summary, &published, &a.Source, &a.AddedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan article: %w", err))
		}
		if published != nil {
			a.Published = *published
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate articles: %w", err))
	}
	return articles, nil
}

// UpsertClassification inserts or overwrites the classification for the
// (article, organization) pair. The assessment rollup columns are left
// untouched on conflict; criti_status defaults to WAITING on first insert.
func (s *Store) UpsertClassification(ctx context.Context, c *intel.Classification) error {
	ctx, span := s.startSpan(ctx, "pgstore.UpsertClassification", "UPSERT")
	defer span.End()

	query := `INSERT INTO article_classifications (
		article_id, organization_id, classification, explanation, advice,
		reasoning, status, classification_date, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (article_id, organization_id) DO UPDATE SET
		classification      = EXCLUDED.classification,
		explanation         = EXCLUDED.explanation,
		advice              = EXCLUDED.advice,
		reasoning           = EXCLUDED.reasoning,
		status              = EXCLUDED.status,
		classification_date = NOW(),
		updated_at          = NOW()
	RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		c.ArticleID, c.OrganizationID, nullableLabel(c.Label), c.Explanation,
		c.Advice, c.Reasoning, string(c.Status),
	).Scan(&c.ID)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert classification: %w", err))
	}
	return nil
}

// AssessmentQueue returns CLASSIFIED rows with assessment status WAITING or
// FAILED, joined with the article and organization context the assessor
// prompt needs, oldest classification first.
func (s *Store) AssessmentQueue(ctx context.Context, limit int) ([]intel.AssessmentItem, error) {
	ctx, span := s.startSpan(ctx, "pgstore.AssessmentQueue", "SELECT")
	defer span.End()

	builder := psql.
		Select(
			"ac.id", "ac.article_id", "ac.organization_id", "ac.classification",
			"ac.explanation", "ac.advice", "ac.reasoning", "ac.classification_date",
			"ac.criti_status", "a.title", "a.summary", "o.company_context",
		).
		From("article_classifications ac").
		Join("articles a ON ac.article_id = a.id").
		Join("organizations o ON ac.organization_id = o.id").
		Where(sq.Eq{"ac.status": string(intel.StatusClassified)}).
		Where(sq.Eq{"ac.criti_status": []string{
			string(intel.AssessmentWaiting),
			string(intel.AssessmentFailed),
		}}).
		OrderBy("ac.classification_date ASC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("build query: %w", err))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query assessment queue: %w", err))
	}
	defer rows.Close()

	var items []intel.AssessmentItem
	for rows.Next() {
		var (
			item         intel.AssessmentItem
			label        *string
			classifiedAt *time.Time
			critiStatus  string
		)
		c := &item.Classification
		err := rows.Scan(
			&c.ID, &c.ArticleID, &c.OrganizationID, &label,
			&c.Explanation, &c.Advice, &c.Reasoning, &classifiedAt,
			&critiStatus, &item.ArticleTitle, &item.ArticleSummary, &item.CompanyContext,
		)
		if err != nil {
			return nil, spanErr(span, fmt.Errorf("scan assessment item: %w", err))
		}
		c.Status = intel.StatusClassified
		c.AssessmentStatus = intel.AssessmentStatus(critiStatus)
		if label != nil {
			c.Label = intel.Label(*label)
		}
		if classifiedAt != nil {
			c.ClassifiedAt = *classifiedAt
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate assessment queue: %w", err))
	}
	return items, nil
}

// SaveAssessment writes the rollup to the classification row and, only for
// GIVEN results, upserts the six-criterion detail row in the same
// transaction. A FAILED result never writes or overwrites detail.
func (s *Store) SaveAssessment(ctx context.Context, r *intel.AssessmentResult) error {
	ctx, span := s.startSpan(ctx, "pgstore.SaveAssessment", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	_, err = tx.Exec(ctx,
		`UPDATE article_classifications
		 SET criti_score = $1, criti_explanation = $2, criti_status = $3,
		     criti_date = NOW(), updated_at = NOW()
		 WHERE id = $4`,
		r.Score, r.Summary, string(r.Status), r.ClassificationID,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update assessment rollup: %w", err))
	}

	if r.Status == intel.AssessmentGiven && r.Detail != nil {
		if err := upsertDetail(ctx, tx, r.Detail); err != nil {
			return spanErr(span, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func upsertDetail(ctx context.Context, tx pgx.Tx, d *intel.AssessmentDetail) error {
	query := `INSERT INTO criticality_score_details (
		article_classification_id,
		correctness_factual_soundness, relevance_alignment,
		reasoning_transparency, practical_usefulness_actionability,
		clarity_communication_quality, safety_bias_appropriateness,
		correctness_factual_soundness_explanation, relevance_alignment_explanation,
		reasoning_transparency_explanation, practical_usefulness_actionability_explanation,
		clarity_communication_quality_explanation, safety_bias_appropriateness_explanation
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (article_classification_id) DO UPDATE SET
		correctness_factual_soundness                  = EXCLUDED.correctness_factual_soundness,
		relevance_alignment                            = EXCLUDED.relevance_alignment,
		reasoning_transparency                         = EXCLUDED.reasoning_transparency,
		practical_usefulness_actionability             = EXCLUDED.practical_usefulness_actionability,
		clarity_communication_quality                  = EXCLUDED.clarity_communication_quality,
		safety_bias_appropriateness                    = EXCLUDED.safety_bias_appropriateness,
		correctness_factual_soundness_explanation      = EXCLUDED.correctness_factual_soundness_explanation,
		relevance_alignment_explanation                = EXCLUDED.relevance_alignment_explanation,
		reasoning_transparency_explanation             = EXCLUDED.reasoning_transparency_explanation,
		practical_usefulness_actionability_explanation = EXCLUDED.practical_usefulness_actionability_explanation,
		clarity_communication_quality_explanation      = EXCLUDED.clarity_communication_quality_explanation,
		safety_bias_appropriateness_explanation        = EXCLUDED.safety_bias_appropriateness_explanation,
		created_at                                     = NOW()`

	_, err := tx.Exec(ctx, query,
		d.ClassificationID,
		d.Scores[intel.CriterionCorrectness], d.Scores[intel.CriterionRelevance],
		d.Scores[intel.CriterionReasoning], d.Scores[intel.CriterionUsefulness],
		d.Scores[intel.CriterionClarity], d.Scores[intel.CriterionSafety],
		d.Justifications[intel.CriterionCorrectness], d.Justifications[intel.CriterionRelevance],
		d.Justifications[intel.CriterionReasoning], d.Justifications[intel.CriterionUsefulness],
		d.Justifications[intel.CriterionClarity], d.Justifications[intel.CriterionSafety],
	)
	if err != nil {
		return fmt.Errorf("upsert assessment detail: %w", err)
	}
	return nil
}

// nullableLabel maps an unset label to NULL so failed rows store no label.
func nullableLabel(l intel.Label) *string {
	if l == "" {
		return nil
	}
	s := string(l)
	return &s
}

func (s *Store) startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
