package intel

import (
	"encoding/json"
	"regexp"
	"strings"
)

const noOverallSummary = "No overall summary provided"

// AssessmentParse is the structured form of an assessor response. Scores
// holds whichever of the six criterion scores the model supplied; missing
// criteria are treated as 0 by AggregateScore.
type AssessmentParse struct {
	Scores         map[Criterion]int
	Justifications map[Criterion]string
	Summary        string
}

// ParseAssessment turns raw assessor output into per-criterion scores,
// justifications, and an overall summary. Strict JSON is tried first; on a
// decode error a regex salvage pass attempts to recover the scores object
// and summary from malformed JSON. Returns nil when nothing usable could be
// extracted.
func ParseAssessment(raw string) *AssessmentParse {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if p, ok := decodeAssessmentJSON(raw); ok {
		return p
	}
	return salvageAssessment(raw)
}

func decodeAssessmentJSON(raw string) (*AssessmentParse, bool) {
	var body struct {
		Scores         map[string]float64 `json:"scores"`
		Explanations   map[string]string  `json:"explanations"`
		OverallSummary string             `json:"overall_summary"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &body); err != nil {
		return nil, false
	}
	// A decodable document without a scores object is a hard failure, not
	// a salvage candidate: the model understood JSON but skipped the task.
	if len(body.Scores) == 0 {
		return nil, true
	}

	p := &AssessmentParse{
		Scores:         make(map[Criterion]int),
		Justifications: make(map[Criterion]string),
		Summary:        strings.TrimSpace(body.OverallSummary),
	}
	for _, c := range Criteria {
		if v, ok := body.Scores[string(c)]; ok {
			p.Scores[c] = int(v)
		}
		if e, ok := body.Explanations[string(c)]; ok {
			p.Justifications[c] = strings.TrimSpace(e)
		}
	}
	if len(p.Scores) == 0 {
		return nil, true
	}
	if p.Summary == "" {
		p.Summary = noOverallSummary
	}
	return p, true
}

var (
	scoresObjectRe  = regexp.MustCompile(`(?s)"scores"\s*:\s*\{([^}]+)\}`)
	overallSummryRe = regexp.MustCompile(`"overall_summary"\s*:\s*"([^"]+)"`)
)

// salvageAssessment recovers criterion scores from malformed JSON by
// matching the scores object and picking out each criterion with a regex.
// Justifications are recovered best-effort from anywhere in the text.
func salvageAssessment(raw string) *AssessmentParse {
	m := scoresObjectRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	p := &AssessmentParse{
		Scores:         make(map[Criterion]int),
		Justifications: make(map[Criterion]string),
	}
	for _, c := range Criteria {
		scoreRe := regexp.MustCompile(`"` + string(c) + `"\s*:\s*(\d+)`)
		if sm := scoreRe.FindStringSubmatch(m[1]); sm != nil {
			n := 0
			for _, d := range sm[1] {
				n = n*10 + int(d-'0')
			}
			p.Scores[c] = n
		}
		justRe := regexp.MustCompile(`"` + string(c) + `"\s*:\s*"([^"]+)"`)
		if jm := justRe.FindStringSubmatch(raw); jm != nil {
			p.Justifications[c] = jm[1]
		}
	}
	if len(p.Scores) == 0 {
		return nil
	}

	if sm := overallSummryRe.FindStringSubmatch(raw); sm != nil {
		p.Summary = sm[1]
	} else if len(raw) > 200 {
		p.Summary = raw[:200]
	} else {
		p.Summary = raw
	}
	return p
}
