package intel

import (
	"strings"
	"time"
)

// Label is the three-way business impact classification of an article.
type Label string

const (
	LabelThreat      Label = "Threat"
	LabelOpportunity Label = "Opportunity"
	LabelNeutral     Label = "Neutral"

	// LabelUnknown marks a response that parsed but carried a value outside
	// the three valid labels. It is stored explicitly so downstream readers
	// can tell "parsed but invalid" apart from "parse failed entirely".
	LabelUnknown Label = "Error: Unknown"
)

// Valid reports whether l is one of the three real classification labels.
func (l Label) Valid() bool {
	return l == LabelThreat || l == LabelOpportunity || l == LabelNeutral
}

// NormalizeLabel maps any value outside the three valid labels (including
// empty) to LabelUnknown.
func NormalizeLabel(s string) Label {
	l := Label(strings.TrimSpace(s))
	if !l.Valid() {
		return LabelUnknown
	}
	return l
}

// Status tracks where a classification is in its lifecycle. The FAILED
// values keep their human-readable suffixes so rows written by earlier
// versions of the pipeline remain selectable.
type Status string

const (
	// StatusPending means no classification has been attempted yet.
	StatusPending Status = "PENDING"

	// StatusClassified means the model produced a usable classification.
	StatusClassified Status = "CLASSIFIED"

	// StatusFailedParse means the model responded but the response could
	// not be parsed into a classification.
	StatusFailedParse Status = "FAILED (to parse response)"

	// StatusFailedNoResponse means the model call itself failed.
	StatusFailedNoResponse Status = "FAILED (no response)"
)

// Retryable reports whether a row with this status re-enters the pending
// selection set on the next run. Any FAILED variant is retryable.
func (s Status) Retryable() bool {
	return s == StatusPending || strings.HasPrefix(string(s), "FAILED")
}

// AssessmentStatus tracks the criticality assessment lifecycle of a
// classification.
type AssessmentStatus string

const (
	// AssessmentWaiting is the initial state, set when a classification
	// succeeds and has not been assessed yet.
	AssessmentWaiting AssessmentStatus = "WAITING"

	// AssessmentGiven means the assessor produced a criticality score.
	AssessmentGiven AssessmentStatus = "GIVEN"

	// AssessmentFailed means the assessment call or parse failed; the row
	// re-enters the assessment queue on the next run.
	AssessmentFailed AssessmentStatus = "FAILED"
)

// Article is an ingested news item. Articles are written by the feed
// collaborator and are read-only for this pipeline.
type Article struct {
	ID        int64
	Title     string
	Link      string
	Summary   string
	Published time.Time
	Source    string
	AddedAt   time.Time
}

// Organization is a tenant. CreatedAt doubles as the classification
// watermark: articles published before it are never classified for the
// organization. Read-only for this pipeline.
type Organization struct {
	ID             int64
	Name           string
	CompanyContext string
	Active         bool
	CreatedAt      time.Time
}

// Classification is the per-(article, organization) record this pipeline
// owns. The criticality rollup fields live on the same record; the
// six-criterion breakdown is stored separately as an AssessmentDetail.
type Classification struct {
	ID             int64
	ArticleID      int64
	OrganizationID int64
	Label          Label
	Explanation    string
	Advice         string
	Reasoning      string
	Status         Status
	ClassifiedAt   time.Time

	AssessmentStatus   AssessmentStatus
	CriticalityScore   *int
	CriticalitySummary string
	AssessedAt         time.Time
}

// Criterion is one of the six quality axes the assessor model scores
// independently from 0 to 100.
type Criterion string

const (
	CriterionCorrectness Criterion = "correctness_factual_soundness"
	CriterionRelevance   Criterion = "relevance_alignment"
	CriterionReasoning   Criterion = "reasoning_transparency"
	CriterionUsefulness  Criterion = "practical_usefulness_actionability"
	CriterionClarity     Criterion = "clarity_communication_quality"
	CriterionSafety      Criterion = "safety_bias_appropriateness"
)

// Criteria lists all six criteria in a stable order.
var Criteria = []Criterion{
	CriterionCorrectness,
	CriterionRelevance,
	CriterionReasoning,
	CriterionUsefulness,
	CriterionClarity,
	CriterionSafety,
}

// AssessmentDetail is the six-criterion breakdown behind a criticality
// score, keyed by the classification it grades.
type AssessmentDetail struct {
	ClassificationID int64
	Scores           map[Criterion]int
	Justifications   map[Criterion]string
}

// AssessmentItem is one entry in the assessment queue: a successful
// classification joined with the article and organization context the
// assessor prompt needs.
type AssessmentItem struct {
	Classification Classification
	ArticleTitle   string
	ArticleSummary string
	CompanyContext string
}

// AssessmentResult is what the assessment stage persists for one item.
// Detail must be nil unless Status is AssessmentGiven.
type AssessmentResult struct {
	ClassificationID int64
	Score            *int
	Summary          string
	Status           AssessmentStatus
	Detail           *AssessmentDetail
}
