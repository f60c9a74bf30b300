package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmguard-mcp-server/internal/domain"
)

func TestDefaultTables(t *testing.T) {
	kb, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"CYP2D6", "CYP2C19", "CYP2C9", "SLCO1B1", "TPMT", "DPYD"}, kb.TargetGenes())
	assert.Equal(t, []string{"AZATHIOPRINE", "CLOPIDOGREL", "CODEINE", "FLUOROURACIL", "SIMVASTATIN", "WARFARIN"}, kb.SupportedDrugs())

	kv, ok := kb.LookupVariant("rs3892097")
	require.True(t, ok)
	assert.Equal(t, KnownVariant{Gene: "CYP2D6", Star: "*4"}, kv)

	_, ok = kb.LookupVariant("rs0000000")
	assert.False(t, ok)
}

func TestRequiredGenesOrder(t *testing.T) {
	kb := MustDefault()

	tests := []struct {
		drug  string
		genes []string
	}{
		{"CODEINE", []string{"CYP2D6"}},
		{"WARFARIN", []string{"CYP2C9", "VKORC1"}},
		{"AZATHIOPRINE", []string{"TPMT", "NUDT15"}},
	}

	for _, tt := range tests {
		t.Run(tt.drug, func(t *testing.T) {
			genes, ok := kb.RequiredGenes(tt.drug)
			require.True(t, ok)
			assert.Equal(t, tt.genes, genes)
		})
	}

	_, ok := kb.RequiredGenes("ASPIRIN")
	assert.False(t, ok)
}

func TestRuleLookup(t *testing.T) {
	kb := MustDefault()

	tests := []struct {
		name      string
		drug      string
		phenotype domain.Phenotype
		risk      domain.RiskLabel
		found     bool
	}{
		{"codeine poor", "CODEINE", domain.PhenotypePoor, domain.RiskToxic, true},
		{"codeine ultra-rapid", "CODEINE", domain.PhenotypeUltraRapid, domain.RiskToxic, true},
		{"clopidogrel poor", "CLOPIDOGREL", domain.PhenotypePoor, domain.RiskIneffective, true},
		{"warfarin rapid", "WARFARIN", domain.PhenotypeRapid, domain.RiskAdjustDosage, true},
		{"simvastatin has no URM row", "SIMVASTATIN", domain.PhenotypeUltraRapid, "", false},
		{"unknown drug", "ASPIRIN", domain.PhenotypeNormal, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := kb.Rule(tt.drug, tt.phenotype)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.risk, rule.Risk)
		})
	}
}

func TestSeverityMap(t *testing.T) {
	kb := MustDefault()

	expected := map[domain.RiskLabel]domain.Severity{
		domain.RiskSafe:         domain.SeverityNone,
		domain.RiskAdjustDosage: domain.SeverityModerate,
		domain.RiskToxic:        domain.SeverityCritical,
		domain.RiskIneffective:  domain.SeverityHigh,
		domain.RiskUnknown:      domain.SeverityLow,
	}
	for label, sev := range expected {
		got, ok := kb.Severity(label)
		assert.True(t, ok, label)
		assert.Equal(t, sev, got, label)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	kb := MustDefault()

	genes, _ := kb.RequiredGenes("WARFARIN")
	genes[0] = "MUTATED"
	again, _ := kb.RequiredGenes("WARFARIN")
	assert.Equal(t, "CYP2C9", again[0])

	markers := kb.Markers()
	markers.Poor[0] = "MUTATED"
	assert.Equal(t, "*3", kb.Markers().Poor[0])
}

func TestParseRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "drugs: [unterminated"},
		{"no target genes", "drugs: {X: {genes: [A]}}"},
		{"drug without genes", "target_genes: [A]\ndrugs: {X: {genes: []}}"},
		{"bad risk label", "target_genes: [A]\ndrugs: {X: {genes: [A], rules: {PM: {risk: Deadly}}}}"},
		{"bad phenotype", "target_genes: [A]\ndrugs: {X: {genes: [A], rules: {ZZ: {risk: Safe}}}}"},
		{"bad severity", "target_genes: [A]\nseverity: {Safe: mild}\ndrugs: {X: {genes: [A]}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	content := `
target_genes: [cyp2d6]
known_variants:
  rs1: {gene: cyp2d6, star: "*4"}
phenotype_markers:
  poor: ["*4"]
severity:
  Toxic: critical
drugs:
  tramadol:
    genes: [cyp2d6]
    rules:
      PM: {risk: Toxic, rationale: test}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	kb, err := Load(path)
	require.NoError(t, err)
	assert.True(t, kb.IsTargetGene("CYP2D6"))
	assert.True(t, kb.IsSupported("TRAMADOL"))
	kv, ok := kb.LookupVariant("rs1")
	require.True(t, ok)
	assert.Equal(t, "CYP2D6", kv.Gene)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	def, err := Load("")
	require.NoError(t, err)
	assert.Len(t, def.SupportedDrugs(), 6)
}
