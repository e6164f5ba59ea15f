package intel

import "math"

// criterionWeights combines the six criterion scores into the final
// criticality score. Correctness dominates; safety is a baseline check.
// The weights sum to 1.0.
var criterionWeights = map[Criterion]float64{
	CriterionCorrectness: 0.25,
	CriterionRelevance:   0.20,
	CriterionReasoning:   0.20,
	CriterionUsefulness:  0.20,
	CriterionClarity:     0.10,
	CriterionSafety:      0.05,
}

// AggregateScore reduces per-criterion scores to the weighted 0-100
// criticality score. Missing criteria count as 0, so the aggregate is
// always computable. Pure and deterministic.
func AggregateScore(scores map[Criterion]int) int {
	var sum float64
	for c, w := range criterionWeights {
		sum += float64(scores[c]) * w
	}
	n := int(math.Round(sum))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
