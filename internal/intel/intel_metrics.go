package intel

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for both pipeline stages.
type Metrics struct {
	ClassificationsTotal *prometheus.CounterVec
	AssessmentsTotal     *prometheus.CounterVec
	LLMCallsTotal        *prometheus.CounterVec
	LLMRetriesTotal      prometheus.Counter
	LLMDuration          *prometheus.HistogramVec
	StageDuration        *prometheus.HistogramVec
	CriticalityScore     prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_classifications_total",
			Help: "Classification attempts by persisted status.",
		}, []string{"status"}),
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_assessments_total",
			Help: "Criticality assessment attempts by persisted status.",
		}, []string{"status"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_llm_calls_total",
			Help: "LLM round trips by stage and outcome.",
		}, []string{"stage", "outcome"}),
		LLMRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookout_llm_retries_total",
			Help: "Rate-limit backoff retries across all LLM calls.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_stage_duration_seconds",
			Help:    "Duration of full stage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~2048s
		}, []string{"stage"}),
		CriticalityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lookout_criticality_score",
			Help:    "Distribution of aggregated criticality scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
	}

	reg.MustRegister(
		m.ClassificationsTotal,
		m.AssessmentsTotal,
		m.LLMCallsTotal,
		m.LLMRetriesTotal,
		m.LLMDuration,
		m.StageDuration,
		m.CriticalityScore,
	)

	return m
}

// NopMetrics returns metrics registered on a throwaway registry, for tests
// and callers that do not export.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
