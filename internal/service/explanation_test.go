package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmguard-mcp-server/internal/domain"
)

func codeineContext() domain.ExplanationContext {
	variants := domain.VariantSet{
		"CYP2D6": {Chromosome: "chr22", Position: "42522613", RSID: "rs3892097", Reference: "A", Alternate: "G", Gene: "CYP2D6", StarAllele: "*4", Observed: true},
	}
	decision := RiskDecision{Label: domain.RiskToxic, Severity: domain.SeverityCritical, Rationale: "avoid"}
	return BuildExplanationContext("CODEINE", []string{"CYP2D6"}, variants, domain.PhenotypePoor, "*4/*4", decision)
}

func TestBuildExplanationContext_WildTypePlaceholders(t *testing.T) {
	decision := RiskDecision{Label: domain.RiskSafe, Severity: domain.SeverityNone, Rationale: "Standard dosing"}
	variants := domain.VariantSet{
		"CYP2C9": {Gene: "CYP2C9", StarAllele: "*2", Observed: true},
	}

	ec := BuildExplanationContext("WARFARIN", []string{"CYP2C9", "VKORC1"}, variants, domain.PhenotypeNormal, "*2/*2", decision)

	require.Len(t, ec.Variants, 2)
	assert.Equal(t, "*2", ec.Variants[0].StarAllele)
	assert.Equal(t, domain.VariantCall{Gene: "VKORC1", StarAllele: "*1"}, ec.Variants[1])
	assert.False(t, ec.AllGenesAvailable)
	assert.Equal(t, domain.RiskSafe, ec.RiskLabel)
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(codeineContext())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "You are a pharmacogenomics clinical explanation generator."))
	assert.Contains(t, prompt, "Do NOT change risk level.")
	assert.Contains(t, prompt, `"drug": "CODEINE"`)
	assert.Contains(t, prompt, `"risk_label": "Toxic"`)
	assert.Contains(t, prompt, `"star": "*4"`)
	assert.Contains(t, prompt, `"all_genes_available": true`)

	payload := prompt[strings.Index(prompt, "{"):]
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "*4/*4", decoded["diplotype"])
}

func TestExplanationAdapter_Explain(t *testing.T) {
	valid := domain.Explanation{
		GeneticFinding:      "CYP2D6 *4 detected",
		BiologicalMechanism: "No enzyme activity",
		ClinicalImpact:      "Reduced analgesia",
		RecommendedAction:   "Use an alternative opioid",
	}

	tests := []struct {
		name      string
		generator *stubGenerator
		expected  domain.Explanation
	}{
		{
			name:      "strict JSON",
			generator: &stubGenerator{response: validExplanationJSON},
			expected:  valid,
		},
		{
			name:      "fenced JSON with language tag",
			generator: &stubGenerator{response: "```json\n" + validExplanationJSON + "\n```"},
			expected:  valid,
		},
		{
			name:      "fenced JSON without tag",
			generator: &stubGenerator{response: "```\n" + validExplanationJSON + "\n```"},
			expected:  valid,
		},
		{
			name:      "prose payload becomes the finding",
			generator: &stubGenerator{response: "I cannot help with that."},
			expected:  domain.Explanation{GeneticFinding: "I cannot help with that."},
		},
		{
			name:      "empty payload",
			generator: &stubGenerator{response: "   "},
			expected:  domain.Explanation{GeneticFinding: "LLM returned an empty or invalid response."},
		},
		{
			name:      "empty fenced payload",
			generator: &stubGenerator{response: "```json\n```"},
			expected:  domain.Explanation{GeneticFinding: "LLM returned an empty or invalid response."},
		},
		{
			name:      "null payload",
			generator: &stubGenerator{response: "null"},
			expected:  domain.Explanation{GeneticFinding: "null"},
		},
		{
			name:      "collaborator error",
			generator: &stubGenerator{err: errors.New("status 503")},
			expected:  domain.Explanation{GeneticFinding: "LLM Analysis failed: status 503"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewExplanationAdapter(tt.generator, testLogger())

			got := adapter.Explain(context.Background(), codeineContext())

			assert.Equal(t, tt.expected, got)
			assert.Equal(t, 1, tt.generator.calls())
		})
	}
}

func TestExplanationAdapter_NoGenerator(t *testing.T) {
	adapter := NewExplanationAdapter(nil, testLogger())

	got := adapter.Explain(context.Background(), codeineContext())
	assert.Equal(t, domain.Explanation{GeneticFinding: DefaultUnavailableMessage}, got)

	custom := NewExplanationAdapter(nil, testLogger(), WithUnavailableMessage("disabled"))
	assert.Equal(t, "disabled", custom.Explain(context.Background(), codeineContext()).GeneticFinding)
}

func TestExplanationAdapter_Timeout(t *testing.T) {
	gen := &stubGenerator{block: true}
	adapter := NewExplanationAdapter(gen, testLogger(), WithExplanationTimeout(20*time.Millisecond))

	start := time.Now()
	got := adapter.Explain(context.Background(), codeineContext())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "LLM Analysis failed: context deadline exceeded", got.GeneticFinding)
	assert.Empty(t, got.RecommendedAction)
}

func TestParseExplanation(t *testing.T) {
	exp, ok := ParseExplanation(validExplanationJSON)
	assert.True(t, ok)
	assert.Equal(t, "Use an alternative opioid", exp.RecommendedAction)

	exp, ok = ParseExplanation("```JSON\n{\"genetic_finding\":\"x\"}\n```")
	assert.True(t, ok)
	assert.Equal(t, "x", exp.GeneticFinding)

	exp, ok = ParseExplanation("[1,2,3]")
	assert.False(t, ok)
	assert.Equal(t, "[1,2,3]", exp.GeneticFinding)
}

func TestParseExplanation_NoKnownFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty object", "{}"},
		{"unrelated keys", `{"summary":"ok","score":3}`},
		{"fenced empty object", "```json\n{}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, ok := ParseExplanation(tt.payload)
			assert.False(t, ok)
			assert.NotEmpty(t, exp.GeneticFinding)
			assert.Empty(t, exp.RecommendedAction)
		})
	}
}
