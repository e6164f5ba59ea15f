package intel

import (
	"encoding/json"
	"strings"
)

// Placeholder texts used when the model response omits a field.
const (
	noExplanation = "No explanation provided"
	noAdvice      = "No specific advice provided"
)

// ClassificationResult is the structured form of a classifier response.
type ClassificationResult struct {
	Label       Label
	Explanation string
	Advice      string
}

// Usable reports whether the parse produced enough to persist the record as
// CLASSIFIED. An empty Label only occurs in line-prefix mode when no
// Classification line was found at all.
func (r *ClassificationResult) Usable() bool {
	return r != nil && r.Label != "" && r.Explanation != ""
}

// ParseClassification turns raw classifier output into a structured result.
// Strict JSON is tried first, then the degraded line-prefix format. Returns
// nil only when raw is empty. Parsing is deterministic: the same input
// always yields the same result.
func ParseClassification(raw string) *ClassificationResult {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if r, ok := decodeClassificationJSON(raw); ok {
		return r
	}
	return decodeClassificationLines(raw)
}

// decodeClassificationJSON handles the structured response shape:
// {"classification": ..., "explanation": ..., "advice": ...}, optionally
// wrapped in a markdown code fence.
func decodeClassificationJSON(raw string) (*ClassificationResult, bool) {
	var body struct {
		Classification string `json:"classification"`
		Explanation    string `json:"explanation"`
		Advice         string `json:"advice"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &body); err != nil {
		return nil, false
	}

	r := &ClassificationResult{
		Label:       NormalizeLabel(body.Classification),
		Explanation: strings.TrimSpace(body.Explanation),
		Advice:      strings.TrimSpace(body.Advice),
	}
	if r.Explanation == "" {
		r.Explanation = noExplanation
	}
	if r.Advice == "" {
		r.Advice = noAdvice
	}
	return r, true
}

// decodeClassificationLines handles the degraded free-text shape: one value
// per line behind a case-insensitive "Classification:" / "Explanation:" /
// "Advice:" prefix, optionally wrapped in bold markup. A missing explanation
// falls back to the whole raw text.
func decodeClassificationLines(raw string) *ClassificationResult {
	r := &ClassificationResult{}

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if v, ok := linePrefixValue(line, "classification"); ok {
			r.Label = NormalizeLabel(v)
		} else if v, ok := linePrefixValue(line, "explanation"); ok {
			r.Explanation = v
		} else if v, ok := linePrefixValue(line, "advice"); ok {
			r.Advice = v
		}
	}

	if r.Explanation == "" {
		r.Explanation = raw
	}
	if r.Advice == "" {
		r.Advice = noAdvice
	}
	return r
}

// linePrefixValue matches `Key:` or `**Key:**` at the start of a line,
// case-insensitively, and returns the remainder.
func linePrefixValue(line, key string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"**" + key + ":**", key + ":"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return "", false
}

// stripCodeFence removes a surrounding triple-backtick fence, with an
// optional language tag on the opening line.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return s
	}
	s = strings.TrimRight(s, " \t\n")
	if strings.HasSuffix(s, "```") {
		s = strings.TrimRight(s[:len(s)-3], " \t\n")
	}
	return s
}
