package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/lookout/internal/intel"
	"github.com/linnemanlabs/lookout/internal/intel/pgstore"
)

// openStore connects to the test database and starts from empty tables.
func openStore(t *testing.T) (*pgstore.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("LOOKOUT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LOOKOUT_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}

	_, err = pool.Exec(ctx, `TRUNCATE criticality_score_details, article_classifications, articles, organizations RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s, pool
}

func seedOrganization(t *testing.T, pool *pgxpool.Pool, name string, active bool, createdAt time.Time) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO organizations (name, company_context, is_active, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		name, "context for "+name, active, createdAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id
}

func seedArticle(t *testing.T, pool *pgxpool.Pool, title string, published time.Time) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO articles (title, link, summary, date_published, source)
		 VALUES ($1, $2, $3, $4, 'test-feed') RETURNING id`,
		title, "https://example.com/"+title, "summary of "+title, published,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
	return id
}

func TestActiveOrganizations(t *testing.T) {
	s, pool := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedOrganization(t, pool, "active-a", true, now)
	seedOrganization(t, pool, "inactive", false, now)
	seedOrganization(t, pool, "active-b", true, now)

	orgs, err := s.ActiveOrganizations(ctx)
	if err != nil {
		t.Fatalf("ActiveOrganizations: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("len = %d, want 2", len(orgs))
	}
	if orgs[0].Name != "active-a" || orgs[1].Name != "active-b" {
		t.Errorf("names = [%s %s], want id order", orgs[0].Name, orgs[1].Name)
	}
	if orgs[0].CompanyContext == "" {
		t.Error("CompanyContext should be populated")
	}
}

func TestOrganization_Missing(t *testing.T) {
	s, _ := openStore(t)

	_, ok, err := s.Organization(context.Background(), 424242)
	if err != nil {
		t.Fatalf("Organization: %v", err)
	}
	if ok {
		t.Error("ok = true for nonexistent organization")
	}
}

func TestPendingArticles_WatermarkAndRetry(t *testing.T) {
	s, pool := openStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-24 * time.Hour)
	orgID := seedOrganization(t, pool, "acme", true, created)

	before := seedArticle(t, pool, "before-watermark", created.Add(-time.Hour))
	oldest := seedArticle(t, pool, "oldest", created.Add(time.Hour))
	newest := seedArticle(t, pool, "newest", created.Add(2*time.Hour))

	org, ok, err := s.Organization(ctx, orgID)
	if err != nil || !ok {
		t.Fatalf("Organization: %v %v", ok, err)
	}

	got, err := s.PendingArticles(ctx, org, 0)
	if err != nil {
		t.Fatalf("PendingArticles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (watermark excludes article %d)", len(got), before)
	}
	if got[0].ID != oldest || got[1].ID != newest {
		t.Errorf("order = [%d %d], want oldest first", got[0].ID, got[1].ID)
	}

	// Classify one; it leaves the selection. Fail the other; it stays.
	mustUpsert(t, s, &intel.Classification{
		ArticleID: oldest, OrganizationID: orgID,
		Label: intel.LabelNeutral, Explanation: "e", Advice: "a",
		Status: intel.StatusClassified,
	})
	mustUpsert(t, s, &intel.Classification{
		ArticleID: newest, OrganizationID: orgID,
		Status: intel.StatusFailedNoResponse,
	})

	got, err = s.PendingArticles(ctx, org, 0)
	if err != nil {
		t.Fatalf("PendingArticles: %v", err)
	}
	if len(got) != 1 || got[0].ID != newest {
		t.Errorf("selection = %v, want only the FAILED article %d", got, newest)
	}

	// Limit applies after ordering.
	got, err = s.PendingArticles(ctx, org, 1)
	if err != nil {
		t.Fatalf("PendingArticles: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limited len = %d, want 1", len(got))
	}
}

func TestUpsertClassification_PreservesRollup(t *testing.T) {
	s, pool := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	orgID := seedOrganization(t, pool, "acme", true, now.Add(-time.Hour))
	articleID := seedArticle(t, pool, "a1", now)

	first := &intel.Classification{
		ArticleID: articleID, OrganizationID: orgID,
		Label: intel.LabelThreat, Explanation: "e", Advice: "a",
		Status: intel.StatusClassified,
	}
	mustUpsert(t, s, first)
	if first.ID == 0 {
		t.Fatal("insert should return the row ID")
	}

	var critiStatus string
	if err := pool.QueryRow(ctx,
		`SELECT criti_status FROM article_classifications WHERE id = $1`, first.ID,
	).Scan(&critiStatus); err != nil {
		t.Fatal(err)
	}
	if critiStatus != string(intel.AssessmentWaiting) {
		t.Errorf("criti_status = %q, want WAITING default", critiStatus)
	}

	// Assess, then reclassify; the rollup must survive the upsert.
	score := 66
	if err := s.SaveAssessment(ctx, &intel.AssessmentResult{
		ClassificationID: first.ID,
		Score:            &score,
		Summary:          "fine",
		Status:           intel.AssessmentGiven,
		Detail:           &intel.AssessmentDetail{ClassificationID: first.ID},
	}); err != nil {
		t.Fatalf("SaveAssessment: %v", err)
	}

	second := &intel.Classification{
		ArticleID: articleID, OrganizationID: orgID,
		Label: intel.LabelOpportunity, Explanation: "e2", Advice: "a2",
		Status: intel.StatusClassified,
	}
	mustUpsert(t, s, second)
	if second.ID != first.ID {
		t.Errorf("upsert created row %d, want existing %d", second.ID, first.ID)
	}

	var (
		label     string
		gotScore  *int
		gotStatus string
	)
	if err := pool.QueryRow(ctx,
		`SELECT classification, criti_score, criti_status
		 FROM article_classifications WHERE id = $1`, first.ID,
	).Scan(&label, &gotScore, &gotStatus); err != nil {
		t.Fatal(err)
	}
	if label != string(intel.LabelOpportunity) {
		t.Errorf("classification = %q, want overwritten", label)
	}
	if gotScore == nil || *gotScore != 66 {
		t.Errorf("criti_score = %v, want 66 preserved", gotScore)
	}
	if gotStatus != string(intel.AssessmentGiven) {
		t.Errorf("criti_status = %q, want GIVEN preserved", gotStatus)
	}
}

func TestUpsertClassification_FailedRowHasNullLabel(t *testing.T) {
	s, pool := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	orgID := seedOrganization(t, pool, "acme", true, now.Add(-time.Hour))
	articleID := seedArticle(t, pool, "a1", now)

	rec := &intel.Classification{
		ArticleID: articleID, OrganizationID: orgID,
		Status: intel.StatusFailedParse,
	}
	mustUpsert(t, s, rec)

	var label *string
	if err := pool.QueryRow(ctx,
		`SELECT classification FROM article_classifications WHERE id = $1`, rec.ID,
	).Scan(&label); err != nil {
		t.Fatal(err)
	}
	if label != nil {
		t.Errorf("classification = %v, want NULL for a failed row", *label)
	}
}

func TestAssessmentLifecycle(t *testing.T) {
	s, pool := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	orgID := seedOrganization(t, pool, "acme", true, now.Add(-time.Hour))
	articleID := seedArticle(t, pool, "a1", now)

	rec := &intel.Classification{
		ArticleID: articleID, OrganizationID: orgID,
		Label: intel.LabelThreat, Explanation: "e", Advice: "a", Reasoning: "r",
		Status: intel.StatusClassified,
	}
	mustUpsert(t, s, rec)

	items, err := s.AssessmentQueue(ctx, 0)
	if err != nil {
		t.Fatalf("AssessmentQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1", len(items))
	}
	item := items[0]
	if item.Classification.ID != rec.ID {
		t.Errorf("queued id = %d, want %d", item.Classification.ID, rec.ID)
	}
	if item.ArticleTitle != "a1" || item.CompanyContext != "context for acme" {
		t.Errorf("joined fields = %q / %q", item.ArticleTitle, item.CompanyContext)
	}
	if item.Classification.Label != intel.LabelThreat || item.Classification.Reasoning != "r" {
		t.Errorf("classification fields not carried: %+v", item.Classification)
	}

	// A FAILED assessment keeps the row queued and writes no detail.
	if err := s.SaveAssessment(ctx, &intel.AssessmentResult{
		ClassificationID: rec.ID,
		Summary:          "diag",
		Status:           intel.AssessmentFailed,
	}); err != nil {
		t.Fatalf("SaveAssessment failed: %v", err)
	}
	items, err = s.AssessmentQueue(ctx, 0)
	if err != nil {
		t.Fatalf("AssessmentQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue after FAILED = %d, want 1", len(items))
	}
	var detailCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM criticality_score_details WHERE article_classification_id = $1`, rec.ID,
	).Scan(&detailCount); err != nil {
		t.Fatal(err)
	}
	if detailCount != 0 {
		t.Errorf("detail rows = %d, want 0 after FAILED", detailCount)
	}

	// A GIVEN assessment writes the rollup and detail, and dequeues the row.
	score := 74
	if err := s.SaveAssessment(ctx, &intel.AssessmentResult{
		ClassificationID: rec.ID,
		Score:            &score,
		Summary:          "solid",
		Status:           intel.AssessmentGiven,
		Detail: &intel.AssessmentDetail{
			ClassificationID: rec.ID,
			Scores: map[intel.Criterion]int{
				intel.CriterionCorrectness: 80,
				intel.CriterionRelevance:   70,
				intel.CriterionReasoning:   60,
				intel.CriterionUsefulness:  90,
				intel.CriterionClarity:     50,
				intel.CriterionSafety:      100,
			},
			Justifications: map[intel.Criterion]string{
				intel.CriterionCorrectness: "accurate",
			},
		},
	}); err != nil {
		t.Fatalf("SaveAssessment given: %v", err)
	}

	items, err = s.AssessmentQueue(ctx, 0)
	if err != nil {
		t.Fatalf("AssessmentQueue: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("queue after GIVEN = %d, want 0", len(items))
	}

	var (
		gotScore       int
		gotSummary     string
		gotCorrectness int
		gotJust        string
	)
	if err := pool.QueryRow(ctx,
		`SELECT ac.criti_score, ac.criti_explanation,
		        d.correctness_factual_soundness, d.correctness_factual_soundness_explanation
		 FROM article_classifications ac
		 JOIN criticality_score_details d ON d.article_classification_id = ac.id
		 WHERE ac.id = $1`, rec.ID,
	).Scan(&gotScore, &gotSummary, &gotCorrectness, &gotJust); err != nil {
		t.Fatal(err)
	}
	if gotScore != 74 || gotSummary != "solid" {
		t.Errorf("rollup = %d/%q, want 74/solid", gotScore, gotSummary)
	}
	if gotCorrectness != 80 || gotJust != "accurate" {
		t.Errorf("detail = %d/%q, want 80/accurate", gotCorrectness, gotJust)
	}
}

func mustUpsert(t *testing.T, s *pgstore.Store, c *intel.Classification) {
	t.Helper()
	if err := s.UpsertClassification(context.Background(), c); err != nil {
		t.Fatalf("UpsertClassification: %v", err)
	}
}
