package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
)

const (
	// DefaultExplanationTimeout bounds a single collaborator call.
	DefaultExplanationTimeout = 30 * time.Second

	// DefaultUnavailableMessage is reported when no collaborator is configured.
	DefaultUnavailableMessage = "LLM Analysis unavailable: GROQ_API_KEY not set."

	emptyResponseMessage = "LLM returned an empty or invalid response."
)

const explanationInstructions = `You are a pharmacogenomics clinical explanation generator.

IMPORTANT RULES:
- Do NOT infer genotype.
- Do NOT assign phenotype.
- Do NOT change risk level.
- Use ONLY the structured data provided.
- Generate a professional, user-friendly clinical explanation in structured JSON format with exactly these keys:
  "genetic_finding": "Describe the detected genetic variant(s) in simple, clear terms.",
  "biological_mechanism": "Explain how the variant affects the drug's metabolism or action in an easy-to-understand way.",
  "clinical_impact": "Describe the potential effects on the patient's health and treatment in practical terms.",
  "recommended_action": "Provide clear, actionable advice for healthcare providers and patients."

Return ONLY valid JSON, no extra text. Make each section informative and patient-friendly.

Context:
`

// ExplanationAdapter narrates a finished risk call through an external
// text-generation collaborator. It never returns an error: every failure
// degrades to a placeholder explanation.
type ExplanationAdapter struct {
	generator          domain.TextGenerator
	timeout            time.Duration
	unavailableMessage string
	logger             *logrus.Logger
}

// ExplanationOption configures an ExplanationAdapter.
type ExplanationOption func(*ExplanationAdapter)

// WithExplanationTimeout overrides the per-call timeout.
func WithExplanationTimeout(d time.Duration) ExplanationOption {
	return func(a *ExplanationAdapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithUnavailableMessage sets the placeholder text used when generator is nil.
func WithUnavailableMessage(msg string) ExplanationOption {
	return func(a *ExplanationAdapter) {
		a.unavailableMessage = msg
	}
}

// NewExplanationAdapter creates an adapter. A nil generator is allowed and
// produces the unavailable placeholder for every call.
func NewExplanationAdapter(generator domain.TextGenerator, logger *logrus.Logger, opts ...ExplanationOption) *ExplanationAdapter {
	a := &ExplanationAdapter{
		generator:          generator,
		timeout:            DefaultExplanationTimeout,
		unavailableMessage: DefaultUnavailableMessage,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildExplanationContext assembles the collaborator fact sheet. Required genes
// without a detected call are represented by wild-type placeholders.
func BuildExplanationContext(
	drug string,
	genes []string,
	variants domain.VariantSet,
	phenotype domain.Phenotype,
	diplotype string,
	decision RiskDecision,
) domain.ExplanationContext {
	calls := make([]domain.VariantCall, 0, len(genes))
	allAvailable := true
	for _, gene := range genes {
		if call, ok := variants[gene]; ok {
			calls = append(calls, call)
			continue
		}
		allAvailable = false
		calls = append(calls, domain.WildType(gene))
	}

	return domain.ExplanationContext{
		Drug:              drug,
		Genes:             append([]string(nil), genes...),
		Phenotype:         phenotype,
		Variants:          calls,
		Diplotype:         diplotype,
		RiskLabel:         decision.Label,
		Rationale:         decision.Rationale,
		AllGenesAvailable: allAvailable,
	}
}

// BuildPrompt renders the fixed instruction framing followed by the context as JSON.
func BuildPrompt(ec domain.ExplanationContext) (string, error) {
	payload, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding explanation context: %w", err)
	}
	return explanationInstructions + string(payload) + "\n", nil
}

// Explain returns the collaborator's narrative for ec, or a placeholder.
func (a *ExplanationAdapter) Explain(ctx context.Context, ec domain.ExplanationContext) domain.Explanation {
	if a.generator == nil {
		return domain.FallbackExplanation(a.unavailableMessage)
	}

	prompt, err := BuildPrompt(ec)
	if err != nil {
		return domain.FallbackExplanation("LLM Analysis failed: " + err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.generator.Generate(callCtx, prompt)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"drug":      ec.Drug,
			"generator": a.generator.Name(),
			"duration":  time.Since(start),
			"error":     err,
		}).Warn("Explanation collaborator failed, using placeholder")
		return domain.FallbackExplanation("LLM Analysis failed: " + err.Error())
	}

	explanation, ok := ParseExplanation(text)
	if !ok {
		a.logger.WithFields(logrus.Fields{
			"drug":      ec.Drug,
			"generator": a.generator.Name(),
		}).Warn("Explanation collaborator returned non-JSON payload")
	}
	return explanation
}

// ParseExplanation decodes a collaborator payload in two stages: a strict
// parse, then a parse after stripping code-fence markers and a "json" tag.
// When both fail it returns the fallback structure and false.
func ParseExplanation(text string) (domain.Explanation, bool) {
	trimmed := strings.TrimSpace(text)
	if exp, ok := decodeExplanation(trimmed); ok {
		return exp, true
	}

	cleaned := stripCodeFence(trimmed)
	if exp, ok := decodeExplanation(cleaned); ok {
		return exp, true
	}

	if cleaned == "" {
		return domain.FallbackExplanation(emptyResponseMessage), false
	}
	return domain.FallbackExplanation(cleaned), false
}

func decodeExplanation(s string) (domain.Explanation, bool) {
	var exp domain.Explanation
	if !strings.HasPrefix(s, "{") {
		return exp, false
	}
	if err := json.Unmarshal([]byte(s), &exp); err != nil {
		return domain.Explanation{}, false
	}
	// an object without any of the four fields is not an explanation
	if exp == (domain.Explanation{}) {
		return exp, false
	}
	return exp, true
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	return s
}
