package intel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts carries the model names, system prompts, and sampling parameters
// for both stages. Defaults match the production setup; individual fields
// can be overridden from a YAML file (-prompts-file).
type Prompts struct {
	ClassifierModel       string  `yaml:"classifierModel"`
	ClassifierSystem      string  `yaml:"classifierSystem"`
	ClassifierMaxTokens   int     `yaml:"classifierMaxTokens"`
	ClassifierTemperature float64 `yaml:"classifierTemperature"`

	AssessorModel       string  `yaml:"assessorModel"`
	AssessorSystem      string  `yaml:"assessorSystem"`
	AssessorMaxTokens   int     `yaml:"assessorMaxTokens"`
	AssessorTemperature float64 `yaml:"assessorTemperature"`
}

const defaultClassifierSystem = `You are a business analyst specializing in supply chain management, operations management and strategic analysis. Your task is to analyze news articles and assess their potential impact on the company described in the company context.`

const defaultAssessorSystem = `You are a critical evaluator and quality assurance expert specializing in assessing AI-generated business intelligence classifications in the fields of Operations Management and Supply Chain Management.

Your role is to objectively evaluate the quality, accuracy, and reliability of article classifications produced by another AI system. You must be thorough, analytical, and unbiased in your assessment.

You will evaluate the output using a scoring matrix based on six criteria. For EACH criterion, you must assign an independent score from 0 to 100 (no weighting, no averaging). Another system will later combine these scores into a final weighted score.

The six criteria are:

1. Correctness / Factual Soundness
2. Relevance & Alignment
3. Reasoning Transparency
4. Practical Usefulness / Actionability
5. Clarity & Communication Quality
6. Safety / Bias / Inappropriate Content

For each criterion, independently assign a score from 0 (very poor) to 100 (excellent). Be critical but fair. Award high scores only when truly deserved. Identify specific strengths and weaknesses in a short explanation.

You MUST NOT compute any overall or weighted score. Only provide the per-criterion scores and a textual explanation.`

// DefaultPrompts returns the built-in prompt configuration.
func DefaultPrompts() Prompts {
	return Prompts{
		ClassifierModel:       "deepseek-ai/DeepSeek-R1",
		ClassifierSystem:      defaultClassifierSystem,
		ClassifierMaxTokens:   2048,
		ClassifierTemperature: 0.5,

		AssessorModel:       "MiniMaxAI/MiniMax-M2",
		AssessorSystem:      defaultAssessorSystem,
		AssessorMaxTokens:   2048,
		AssessorTemperature: 0.3,
	}
}

// LoadPrompts reads a YAML override file on top of the defaults. Fields not
// present in the file keep their default values.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse prompts file: %w", err)
	}
	return p, nil
}

// ClassificationRequest builds the classifier request for one article in
// one organization's context.
func (p Prompts) ClassificationRequest(org *Organization, a *Article) *ChatRequest {
	user := fmt.Sprintf(`COMPANY CONTEXT:
%s

==================================================

NEWS ARTICLE TO ANALYZE:
Title: %s
Summary: %s

==================================================

TASK:
Based on the detailed company context above, classify this news article and explain its potential impact on the company.

Consider (but do not limit yourself to) these aspects when analyzing:
- Supply chain implications (suppliers, logistics, shipping routes, disruptions)
- Market dynamics (demand trends, competition, regional markets)
- Strategic considerations (sponsorships, brand positioning, expansion plans)
- Operational impacts (production planning, forecasting, efficiency)
- Financial implications (costs, revenues, investments)
- Regulatory and sustainability factors

Classification Options:
- Threat: Could negatively impact the company's business, supply chain, reputation, or operations
- Opportunity: Could benefit the company or presents a strategic opportunity
- Neutral: No significant direct impact on the company

Respond with a JSON object:
{"classification": "Threat|Opportunity|Neutral", "explanation": "<2-3 sentences explaining the specific impact, referencing relevant aspects of the company context>", "advice": "<1-2 sentences of concrete advice>"}`,
		org.CompanyContext, a.Title, a.Summary)

	return &ChatRequest{
		Model: p.ClassifierModel,
		Messages: []ChatMessage{
			{Role: "system", Content: p.ClassifierSystem},
			{Role: "user", Content: user},
		},
		MaxTokens:   p.ClassifierMaxTokens,
		Temperature: p.ClassifierTemperature,
	}
}

// AssessmentRequest builds the evaluator request for one classification,
// carrying the original article, the organization context, and the full
// classifier output.
func (p Prompts) AssessmentRequest(item *AssessmentItem) *ChatRequest {
	c := &item.Classification
	user := fmt.Sprintf(`COMPANY CONTEXT:
%s

ORIGINAL ARTICLE:
Title: %s
Summary: %s

CLASSIFICATION PROVIDED BY AI SYSTEM:
Classification: %s
Explanation: %s
Advice: %s
Reasoning/Thinking: %s

TASK:
Critically evaluate this classification and its explanation, advice, and reasoning using the six criteria described in the system message.

IMPORTANT: The classification, explanation, and advice were generated specifically for the company described in the COMPANY CONTEXT above. Evaluate whether the AI system correctly understood and applied this company context in its analysis.

Step-by-step, you should:
1. Carefully compare the classification, explanation, advice, and reasoning against the article title and summary.
2. For EACH of the six criteria, independently:
   a) Assign a score from 0 to 100
   b) Write a brief explanation (2-3 sentences) justifying that specific score
3. Be strict and consistent: similar quality should lead to similar scores across different articles.
4. Provide an overall summary explanation (3-5 sentences) highlighting the main strengths and weaknesses.

SCORE INTERPRETATION (for your internal guidance per criterion):
- 90-100: Excellent - Very strong on this criterion, no major flaws.
- 75-89:  Good - Strong on this criterion, with minor weaknesses.
- 60-74:  Acceptable - Mixed quality with clear areas for improvement.
- 40-59:  Questionable - Significant concerns on this criterion.
- 0-39:   Poor - Major flaws on this criterion.

Output format (valid JSON only):
{
  "scores": {
    "correctness_factual_soundness": <number 0-100>,
    "relevance_alignment": <number 0-100>,
    "reasoning_transparency": <number 0-100>,
    "practical_usefulness_actionability": <number 0-100>,
    "clarity_communication_quality": <number 0-100>,
    "safety_bias_appropriateness": <number 0-100>
  },
  "explanations": {
    "correctness_factual_soundness": "<2-3 sentence explanation for this score>",
    "relevance_alignment": "<2-3 sentence explanation for this score>",
    "reasoning_transparency": "<2-3 sentence explanation for this score>",
    "practical_usefulness_actionability": "<2-3 sentence explanation for this score>",
    "clarity_communication_quality": "<2-3 sentence explanation for this score>",
    "safety_bias_appropriateness": "<2-3 sentence explanation for this score>"
  },
  "overall_summary": "<your 3-5 sentence overall summary>"
}`,
		item.CompanyContext, item.ArticleTitle, item.ArticleSummary,
		c.Label, c.Explanation, c.Advice, c.Reasoning)

	return &ChatRequest{
		Model: p.AssessorModel,
		Messages: []ChatMessage{
			{Role: "system", Content: p.AssessorSystem},
			{Role: "user", Content: user},
		},
		MaxTokens:   p.AssessorMaxTokens,
		Temperature: p.AssessorTemperature,
	}
}
