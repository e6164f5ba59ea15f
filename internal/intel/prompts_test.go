package intel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPrompts(t *testing.T) {
	t.Parallel()

	p := DefaultPrompts()
	if p.ClassifierModel == "" || p.AssessorModel == "" {
		t.Fatal("default models must be set")
	}
	if p.ClassifierMaxTokens <= 0 || p.AssessorMaxTokens <= 0 {
		t.Error("default max tokens must be positive")
	}
	if p.ClassifierSystem == "" || p.AssessorSystem == "" {
		t.Error("default system prompts must be set")
	}
}

func TestLoadPrompts_PartialOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "classifierModel: test/model-a\nclassifierTemperature: 0.9\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}

	if p.ClassifierModel != "test/model-a" {
		t.Errorf("ClassifierModel = %q, want override", p.ClassifierModel)
	}
	if p.ClassifierTemperature != 0.9 {
		t.Errorf("ClassifierTemperature = %v, want 0.9", p.ClassifierTemperature)
	}

	// Fields absent from the file keep their defaults.
	def := DefaultPrompts()
	if p.AssessorModel != def.AssessorModel {
		t.Errorf("AssessorModel = %q, want default %q", p.AssessorModel, def.AssessorModel)
	}
	if p.ClassifierSystem != def.ClassifierSystem {
		t.Error("ClassifierSystem should keep its default")
	}
}

func TestLoadPrompts_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadPrompts_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("classifierModel: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrompts(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestClassificationRequest(t *testing.T) {
	t.Parallel()

	p := DefaultPrompts()
	org := &Organization{
		ID:             1,
		Name:           "Acme Logistics",
		CompanyContext: "Mid-size freight forwarder operating in northern Europe.",
	}
	a := &Article{
		ID:      7,
		Title:   "Port of Hamburg announces week-long strike",
		Summary: "Dock workers walk out over pay dispute.",
	}

	req := p.ClassificationRequest(org, a)

	if req.Model != p.ClassifierModel {
		t.Errorf("Model = %q, want %q", req.Model, p.ClassifierModel)
	}
	if req.MaxTokens != p.ClassifierMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, p.ClassifierMaxTokens)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != p.ClassifierSystem {
		t.Error("first message should carry the classifier system prompt")
	}

	user := req.Messages[1].Content
	for _, want := range []string{org.CompanyContext, a.Title, a.Summary, `"classification"`} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}
}

func TestAssessmentRequest(t *testing.T) {
	t.Parallel()

	p := DefaultPrompts()
	item := &AssessmentItem{
		Classification: Classification{
			ID:          3,
			Label:       LabelThreat,
			Explanation: "Strike blocks the main inbound lane.",
			Advice:      "Reroute via Rotterdam.",
			Reasoning:   "The company depends on Hamburg volume.",
		},
		ArticleTitle:   "Port of Hamburg announces week-long strike",
		ArticleSummary: "Dock workers walk out over pay dispute.",
		CompanyContext: "Mid-size freight forwarder operating in northern Europe.",
	}

	req := p.AssessmentRequest(item)

	if req.Model != p.AssessorModel {
		t.Errorf("Model = %q, want %q", req.Model, p.AssessorModel)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != p.AssessorSystem {
		t.Error("first message should carry the assessor system prompt")
	}

	user := req.Messages[1].Content
	wants := []string{
		item.CompanyContext,
		item.ArticleTitle,
		item.ArticleSummary,
		string(item.Classification.Label),
		item.Classification.Explanation,
		item.Classification.Advice,
		item.Classification.Reasoning,
	}
	for _, c := range Criteria {
		wants = append(wants, string(c))
	}
	for _, want := range wants {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}
}
