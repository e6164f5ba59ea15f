package intel

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Classifier runs the classification stage: it selects pending articles per
// organization, drives the model and parser, and persists one classification
// per (article, organization) pair. Items are processed strictly one at a
// time; item-level failures are persisted as FAILED statuses and never abort
// the run.
type Classifier struct {
	store   Store
	llm     Completer
	prompts Prompts
	logger  log.Logger
	metrics *Metrics

	// Pacing is the inter-request delay; Sleep is how the stage waits.
	// Both are overridable in tests.
	Pacing time.Duration
	Sleep  SleepFunc
}

// NewClassifier creates the classification stage runner.
func NewClassifier(store Store, llm Completer, prompts Prompts, logger log.Logger, m *Metrics) *Classifier {
	if m == nil {
		m = NopMetrics()
	}
	return &Classifier{
		store:   store,
		llm:     llm,
		prompts: prompts,
		logger:  logger,
		metrics: m,
		Pacing:  DefaultPacing,
		Sleep:   Wait,
	}
}

// Run classifies pending articles. organizationID > 0 restricts the run to
// that organization; 0 processes every active organization. limit caps the
// number of articles per organization (0 = no limit). The returned error is
// a run-level failure (selection query, cancellation); item-level failures
// are persisted and counted in the summary instead.
func (c *Classifier) Run(ctx context.Context, organizationID int64, limit int) (*RunSummary, error) {
	start := time.Now()
	defer func() {
		c.metrics.StageDuration.WithLabelValues(StageClassify).Observe(time.Since(start).Seconds())
	}()

	orgs, err := c.selectOrganizations(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	for i := range orgs {
		org := &orgs[i]
		s, err := c.runOrganization(ctx, org, limit)
		summary.add(s)
		if err != nil {
			return summary, err
		}
	}

	c.logger.Info(ctx, "classification run complete",
		"organizations", summary.Organizations,
		"processed", summary.Processed,
		"classified", summary.Succeeded,
		"failed", summary.Failed,
		"duration", time.Since(start).Seconds(),
	)
	return summary, nil
}

func (c *Classifier) selectOrganizations(ctx context.Context, organizationID int64) ([]Organization, error) {
	if organizationID > 0 {
		org, ok, err := c.store.Organization(ctx, organizationID)
		if err != nil {
			return nil, fmt.Errorf("load organization %d: %w", organizationID, err)
		}
		if !ok {
			return nil, fmt.Errorf("organization %d not found", organizationID)
		}
		return []Organization{*org}, nil
	}

	orgs, err := c.store.ActiveOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load organizations: %w", err)
	}
	return orgs, nil
}

func (c *Classifier) runOrganization(ctx context.Context, org *Organization, limit int) (RunSummary, error) {
	L := c.logger.With("organization", org.Name, "organization_id", org.ID)
	s := RunSummary{Organizations: 1}

	articles, err := c.store.PendingArticles(ctx, org, limit)
	if err != nil {
		return s, fmt.Errorf("select pending articles for organization %d: %w", org.ID, err)
	}
	if len(articles) == 0 {
		L.Info(ctx, "no pending articles")
		return s, nil
	}

	L.Info(ctx, "classifying pending articles",
		"count", len(articles),
		"watermark", org.CreatedAt,
	)

	for i := range articles {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}

		a := &articles[i]
		status, err := c.classifyOne(ctx, L, org, a)
		if err != nil {
			// Run-level failure: persistence broke or the run was
			// cancelled mid-call. The item stays selectable.
			return s, err
		}

		s.Processed++
		if status == StatusClassified {
			s.Succeeded++
		} else {
			s.Failed++
		}
		c.metrics.ClassificationsTotal.WithLabelValues(string(status)).Inc()

		if err := c.Sleep(ctx, c.Pacing); err != nil {
			return s, err
		}
	}

	L.Info(ctx, "organization done",
		"processed", s.Processed,
		"classified", s.Succeeded,
		"failed", s.Failed,
	)
	return s, nil
}

// classifyOne runs one article through model, parser, and upsert. It
// returns the persisted status; the error return is reserved for run-level
// failures.
func (c *Classifier) classifyOne(ctx context.Context, L log.Logger, org *Organization, a *Article) (Status, error) {
	L = L.With("article_id", a.ID)

	rec := &Classification{
		ArticleID:      a.ID,
		OrganizationID: org.ID,
	}

	callStart := time.Now()
	res, err := c.llm.Complete(ctx, c.prompts.ClassificationRequest(org, a))
	c.metrics.LLMDuration.WithLabelValues(StageClassify).Observe(time.Since(callStart).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.metrics.LLMCallsTotal.WithLabelValues(StageClassify, "error").Inc()
		L.Error(ctx, err, "classification call failed")
		rec.Status = StatusFailedNoResponse
		return rec.Status, c.persist(ctx, rec)
	}
	c.metrics.LLMCallsTotal.WithLabelValues(StageClassify, "success").Inc()

	if res.Truncated() {
		L.Warn(ctx, "classification response truncated by token limit")
	}

	parsed := ParseClassification(res.Content)
	if !parsed.Usable() {
		L.Warn(ctx, "classification response not parseable",
			"response_len", len(res.Content),
		)
		rec.Status = StatusFailedParse
		return rec.Status, c.persist(ctx, rec)
	}

	rec.Label = parsed.Label
	rec.Explanation = parsed.Explanation
	rec.Advice = parsed.Advice
	rec.Reasoning = res.Reasoning
	rec.Status = StatusClassified

	if err := c.persist(ctx, rec); err != nil {
		return "", err
	}

	L.Info(ctx, "article classified", "label", rec.Label)
	return rec.Status, nil
}

func (c *Classifier) persist(ctx context.Context, rec *Classification) error {
	if err := c.store.UpsertClassification(ctx, rec); err != nil {
		return fmt.Errorf("upsert classification article=%d organization=%d: %w",
			rec.ArticleID, rec.OrganizationID, err)
	}
	return nil
}
