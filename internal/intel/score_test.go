package intel

import "testing"

func TestAggregateScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores map[Criterion]int
		want   int
	}{
		{
			name: "mixed scores",
			scores: map[Criterion]int{
				CriterionCorrectness: 80,
				CriterionRelevance:   70,
				CriterionReasoning:   60,
				CriterionUsefulness:  90,
				CriterionClarity:     50,
				CriterionSafety:      100,
			},
			// 80*.25 + 70*.20 + 60*.20 + 90*.20 + 50*.10 + 100*.05 = 74
			want: 74,
		},
		{
			name: "all perfect",
			scores: map[Criterion]int{
				CriterionCorrectness: 100,
				CriterionRelevance:   100,
				CriterionReasoning:   100,
				CriterionUsefulness:  100,
				CriterionClarity:     100,
				CriterionSafety:      100,
			},
			want: 100,
		},
		{
			name: "all zero",
			scores: map[Criterion]int{
				CriterionCorrectness: 0,
				CriterionRelevance:   0,
				CriterionReasoning:   0,
				CriterionUsefulness:  0,
				CriterionClarity:     0,
				CriterionSafety:      0,
			},
			want: 0,
		},
		{
			name:   "empty map",
			scores: map[Criterion]int{},
			want:   0,
		},
		{
			name:   "nil map",
			scores: nil,
			want:   0,
		},
		{
			name: "missing criteria count as zero",
			scores: map[Criterion]int{
				CriterionCorrectness: 100,
			},
			want: 25,
		},
		{
			name: "rounding up",
			scores: map[Criterion]int{
				CriterionCorrectness: 70, // 17.5
				CriterionSafety:      100, // 5 -> 22.5 rounds to 23
			},
			want: 23,
		},
		{
			name: "out of range scores clamp at 100",
			scores: map[Criterion]int{
				CriterionCorrectness: 500,
				CriterionRelevance:   500,
				CriterionReasoning:   500,
				CriterionUsefulness:  500,
				CriterionClarity:     500,
				CriterionSafety:      500,
			},
			want: 100,
		},
		{
			name: "negative scores clamp at 0",
			scores: map[Criterion]int{
				CriterionCorrectness: -500,
			},
			want: 0,
		},
		{
			name: "unknown keys are ignored",
			scores: map[Criterion]int{
				CriterionCorrectness: 100,
				Criterion("vibes"):   100,
			},
			want: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AggregateScore(tt.scores); got != tt.want {
				t.Errorf("AggregateScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCriterionWeights_SumToOne(t *testing.T) {
	t.Parallel()

	var sum float64
	for _, c := range Criteria {
		w, ok := criterionWeights[c]
		if !ok {
			t.Fatalf("criterion %s has no weight", c)
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("weights sum to %f, want 1.0", sum)
	}
	if len(criterionWeights) != len(Criteria) {
		t.Errorf("criterionWeights has %d entries, want %d", len(criterionWeights), len(Criteria))
	}
}
