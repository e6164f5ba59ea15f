package intel

import "context"

// Store is the persistence boundary for the pipeline. Articles and
// organizations are read-only; classifications and assessment details are
// written exclusively through idempotent upserts keyed on their natural
// uniqueness constraints, so overlapping runs are safe (last write wins).
type Store interface {
	// ActiveOrganizations returns all active organizations ordered by ID.
	ActiveOrganizations(ctx context.Context) ([]Organization, error)

	// Organization returns one organization by ID.
	Organization(ctx context.Context, id int64) (*Organization, bool, error)

	// PendingArticles returns articles needing classification for org:
	// articles with no classification row for the organization, or with a
	// retryable status, published at or after the organization's creation
	// watermark (skipped when the watermark is zero). Ordered by publish
	// time ascending. limit <= 0 means no limit.
	PendingArticles(ctx context.Context, org *Organization, limit int) ([]Article, error)

	// UpsertClassification inserts or overwrites the classification for
	// (c.ArticleID, c.OrganizationID). At most one row ever exists per pair.
	UpsertClassification(ctx context.Context, c *Classification) error

	// AssessmentQueue returns classified-but-unassessed items: status
	// CLASSIFIED with assessment status WAITING or FAILED, ordered by
	// classification time ascending. limit <= 0 means no limit.
	AssessmentQueue(ctx context.Context, limit int) ([]AssessmentItem, error)

	// SaveAssessment persists the rollup (score, summary, status) on the
	// classification row and, only when r.Status is GIVEN, upserts the
	// six-criterion detail row.
	SaveAssessment(ctx context.Context, r *AssessmentResult) error
}
