package intel

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Fixed diagnostics persisted when an assessment fails. The next run
// re-selects the row, so transient failures self-heal.
const (
	diagNoResponse  = "Failed to get response from criticality assessment API"
	diagParseFailed = "Failed to parse criticality assessment response"
)

// Assessor runs the assessment stage: it selects classified-but-unassessed
// records, has the evaluator model grade each classification on six
// criteria, aggregates the weighted criticality score, and persists the
// rollup plus the per-criterion detail.
type Assessor struct {
	store   Store
	llm     Completer
	prompts Prompts
	logger  log.Logger
	metrics *Metrics

	Pacing time.Duration
	Sleep  SleepFunc
}

// NewAssessor creates the assessment stage runner.
func NewAssessor(store Store, llm Completer, prompts Prompts, logger log.Logger, m *Metrics) *Assessor {
	if m == nil {
		m = NopMetrics()
	}
	return &Assessor{
		store:   store,
		llm:     llm,
		prompts: prompts,
		logger:  logger,
		metrics: m,
		Pacing:  DefaultPacing,
		Sleep:   Wait,
	}
}

// Run assesses queued classifications, oldest first. limit caps the number
// of items (0 = no limit). Item-level failures are persisted as FAILED and
// counted; the returned error is a run-level failure only.
func (a *Assessor) Run(ctx context.Context, limit int) (*RunSummary, error) {
	start := time.Now()
	defer func() {
		a.metrics.StageDuration.WithLabelValues(StageAssess).Observe(time.Since(start).Seconds())
	}()

	items, err := a.store.AssessmentQueue(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select assessment queue: %w", err)
	}

	summary := &RunSummary{}
	if len(items) == 0 {
		a.logger.Info(ctx, "no classifications awaiting assessment")
		return summary, nil
	}

	a.logger.Info(ctx, "assessing classifications", "count", len(items))

	for i := range items {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		status, err := a.assessOne(ctx, &items[i])
		if err != nil {
			return summary, err
		}

		summary.Processed++
		if status == AssessmentGiven {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		a.metrics.AssessmentsTotal.WithLabelValues(string(status)).Inc()

		if err := a.Sleep(ctx, a.Pacing); err != nil {
			return summary, err
		}
	}

	a.logger.Info(ctx, "assessment run complete",
		"processed", summary.Processed,
		"given", summary.Succeeded,
		"failed", summary.Failed,
		"duration", time.Since(start).Seconds(),
	)
	return summary, nil
}

// assessOne grades a single classification. Returns the persisted
// assessment status; the error return is reserved for run-level failures.
func (a *Assessor) assessOne(ctx context.Context, item *AssessmentItem) (AssessmentStatus, error) {
	c := &item.Classification
	L := a.logger.With(
		"classification_id", c.ID,
		"article_id", c.ArticleID,
		"organization_id", c.OrganizationID,
	)

	callStart := time.Now()
	res, err := a.llm.Complete(ctx, a.prompts.AssessmentRequest(item))
	a.metrics.LLMDuration.WithLabelValues(StageAssess).Observe(time.Since(callStart).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.metrics.LLMCallsTotal.WithLabelValues(StageAssess, "error").Inc()
		L.Error(ctx, err, "assessment call failed")
		return AssessmentFailed, a.persist(ctx, &AssessmentResult{
			ClassificationID: c.ID,
			Summary:          diagNoResponse,
			Status:           AssessmentFailed,
		})
	}
	a.metrics.LLMCallsTotal.WithLabelValues(StageAssess, "success").Inc()

	if res.Truncated() {
		L.Warn(ctx, "assessment response truncated by token limit")
	}

	parsed := ParseAssessment(res.Content)
	if parsed == nil {
		L.Warn(ctx, "assessment response not parseable", "response_len", len(res.Content))
		return AssessmentFailed, a.persist(ctx, &AssessmentResult{
			ClassificationID: c.ID,
			Summary:          diagParseFailed,
			Status:           AssessmentFailed,
		})
	}

	score := AggregateScore(parsed.Scores)
	result := &AssessmentResult{
		ClassificationID: c.ID,
		Score:            &score,
		Summary:          parsed.Summary,
		Status:           AssessmentGiven,
		Detail: &AssessmentDetail{
			ClassificationID: c.ID,
			Scores:           parsed.Scores,
			Justifications:   parsed.Justifications,
		},
	}

	if err := a.persist(ctx, result); err != nil {
		return "", err
	}

	a.metrics.CriticalityScore.Observe(float64(score))
	L.Info(ctx, "criticality score given", "score", score)
	return AssessmentGiven, nil
}

func (a *Assessor) persist(ctx context.Context, r *AssessmentResult) error {
	if err := a.store.SaveAssessment(ctx, r); err != nil {
		return fmt.Errorf("save assessment classification=%d: %w", r.ClassificationID, err)
	}
	return nil
}
