package domain

// Explanation is the four-field narrative returned by the text-generation collaborator.
type Explanation struct {
	GeneticFinding      string `json:"genetic_finding"`
	BiologicalMechanism string `json:"biological_mechanism"`
	ClinicalImpact      string `json:"clinical_impact"`
	RecommendedAction   string `json:"recommended_action"`
}

// FallbackExplanation returns the placeholder used when no usable narrative was produced.
func FallbackExplanation(message string) Explanation {
	return Explanation{GeneticFinding: message}
}

// ExplanationContext is the fact sheet forwarded to the collaborator. The
// collaborator narrates these facts and must not re-derive any of them.
type ExplanationContext struct {
	Drug              string        `json:"drug"`
	Genes             []string      `json:"genes"`
	Phenotype         Phenotype     `json:"phenotype"`
	Variants          []VariantCall `json:"variants"`
	Diplotype         string        `json:"diplotype"`
	RiskLabel         RiskLabel     `json:"risk_label"`
	Rationale         string        `json:"rationale"`
	AllGenesAvailable bool          `json:"all_genes_available"`
}
