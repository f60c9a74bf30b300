package domain

import (
	"time"
)

// CPICGuideline is the guideline source cited on every recommendation.
const CPICGuideline = "CPIC (Clinical Pharmacogenetics Implementation Consortium)"

// RiskAssessment is the rule-table outcome for one drug with its confidence.
type RiskAssessment struct {
	RiskLabel       RiskLabel `json:"risk_label"`
	ConfidenceScore float64   `json:"confidence_score"`
	Severity        Severity  `json:"severity"`
	ConfidenceBasis string    `json:"confidence_basis"`
}

// PharmacogenomicProfile describes the genotype facts the decision was based on.
type PharmacogenomicProfile struct {
	PrimaryGene      string        `json:"primary_gene"`
	Genes            []string      `json:"genes"`
	Diplotype        string        `json:"diplotype"`
	Phenotype        Phenotype     `json:"phenotype"`
	DetectedVariants []VariantCall `json:"detected_variants"`
}

// ClinicalRecommendation carries the rationale and, for avoid/replace outcomes,
// an alternative therapy suggestion.
type ClinicalRecommendation struct {
	Guideline                 string `json:"guideline"`
	Recommendation            string `json:"recommendation"`
	AlternativeDrugSuggestion string `json:"alternative_drug_suggestion,omitempty"`
}

// ExplanationBlock wraps the narrative produced by the text-generation collaborator.
type ExplanationBlock struct {
	Structured Explanation `json:"structured"`
}

// QualityMetrics records how complete the input data was for this drug.
type QualityMetrics struct {
	VCFParsingSuccess         bool     `json:"vcf_parsing_success"`
	GenesFound                []string `json:"genes_found"`
	AllRequiredGenesAvailable bool     `json:"all_required_genes_available"`
	InputFileSizeBytes        int      `json:"input_file_size_bytes"`
	GenesNotDetected          []string `json:"genes_not_detected"`
	IncompleteVariantData     bool     `json:"incomplete_variant_data"`
	ParsingWarnings           []string `json:"parsing_warnings"`
}

// ClinicalAlert flags results that need physician review before prescribing.
type ClinicalAlert struct {
	AlertLevel     string `json:"alert_level"`
	Message        string `json:"message"`
	ActionRequired bool   `json:"action_required"`
}

// DrugComparison ranks every drug in a batch from safest to riskiest.
type DrugComparison struct {
	RankedDrugs          []string `json:"ranked_drugs"`
	RecommendedFirstLine string   `json:"recommended_first_line"`
	Reasoning            string   `json:"reasoning"`
}

// AnalysisResult is the full per-drug report.
type AnalysisResult struct {
	ID                     string                 `json:"report_id,omitempty"`
	PatientID              string                 `json:"patient_id"`
	Drug                   string                 `json:"drug"`
	Timestamp              time.Time              `json:"timestamp"`
	RiskAssessment         RiskAssessment         `json:"risk_assessment"`
	PharmacogenomicProfile PharmacogenomicProfile `json:"pharmacogenomic_profile"`
	ClinicalRecommendation ClinicalRecommendation `json:"clinical_recommendation"`
	Explanation            *ExplanationBlock      `json:"llm_generated_explanation,omitempty"`
	QualityMetrics         QualityMetrics         `json:"quality_metrics"`
	ClinicalAlert          *ClinicalAlert         `json:"clinical_alert,omitempty"`
	DecisionPath           string                 `json:"decision_path_explanation"`
	Comparison             *DrugComparison        `json:"drug_comparison_summary,omitempty"`
}

// RequiresAlert reports whether the result carries a clinical alert.
func (r *AnalysisResult) RequiresAlert() bool {
	return r.ClinicalAlert != nil
}

// StoredReport is an AnalysisResult as persisted by the report repository.
type StoredReport struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patient_id"`
	Drug       string          `json:"drug"`
	RiskLabel  RiskLabel       `json:"risk_label"`
	Severity   Severity        `json:"severity"`
	Confidence float64         `json:"confidence"`
	Report     *AnalysisResult `json:"report"`
	CreatedAt  time.Time       `json:"created_at"`
}
