package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/knowledge"
)

const (
	// UnknownRationale is reported when the rule table has no entry.
	UnknownRationale = "Insufficient evidence for this drug/phenotype"

	// DefaultAlternative is suggested for avoid/replace outcomes on drugs with
	// no configured alternative.
	DefaultAlternative = "Consult pharmacist for alternatives"

	alertLevelHigh = "High"
	alertMessage   = "Physician consultation strongly recommended before prescribing."

	baseConfidence     = 0.85
	normalSafeBonus    = 0.10
	allGenesBonus      = 0.05
	completenessWeight = 0.05
	maxConfidence      = 0.99
)

// RiskDecision is the outcome of a rule-table lookup.
type RiskDecision struct {
	Label     domain.RiskLabel
	Severity  domain.Severity
	Rationale string
}

// RiskEngine evaluates drug/phenotype pairs against the rule table and derives
// the secondary outputs of a risk call: diplotype, alert, alternative and confidence.
type RiskEngine struct {
	kb     *knowledge.KnowledgeBase
	logger *logrus.Logger
}

// NewRiskEngine creates a new risk rule engine
func NewRiskEngine(kb *knowledge.KnowledgeBase, logger *logrus.Logger) *RiskEngine {
	return &RiskEngine{
		kb:     kb,
		logger: logger,
	}
}

// Evaluate looks up the risk for drug at phenotype. Missing drugs or
// phenotypes yield Unknown with a fixed rationale.
func (e *RiskEngine) Evaluate(drug string, phenotype domain.Phenotype) RiskDecision {
	decision := RiskDecision{
		Label:     domain.RiskUnknown,
		Rationale: UnknownRationale,
	}
	if rule, ok := e.kb.Rule(drug, phenotype); ok {
		decision.Label = rule.Risk
		decision.Rationale = rule.Rationale
	}
	decision.Severity = e.SeverityFor(decision.Label)

	e.logger.WithFields(logrus.Fields{
		"drug":      drug,
		"phenotype": phenotype,
		"risk":      decision.Label,
		"severity":  decision.Severity,
	}).Debug("Risk rule evaluated")

	return decision
}

// SeverityFor maps a label to its severity; unmapped labels are low.
func (e *RiskEngine) SeverityFor(label domain.RiskLabel) domain.Severity {
	if sev, ok := e.kb.Severity(label); ok {
		return sev
	}
	return domain.SeverityLow
}

// Alert returns a physician-consultation alert for avoid/replace outcomes or
// critical severity, and nil otherwise.
func (e *RiskEngine) Alert(label domain.RiskLabel, severity domain.Severity) *domain.ClinicalAlert {
	if !label.RequiresIntervention() && severity != domain.SeverityCritical {
		return nil
	}
	return &domain.ClinicalAlert{
		AlertLevel:     alertLevelHigh,
		Message:        alertMessage,
		ActionRequired: true,
	}
}

// Alternative returns the alternative-therapy suggestion for avoid/replace
// outcomes, and "" otherwise.
func (e *RiskEngine) Alternative(drug string, label domain.RiskLabel) string {
	if !label.RequiresIntervention() {
		return ""
	}
	if alt, ok := e.kb.Alternative(drug); ok {
		return alt
	}
	return DefaultAlternative
}

// Diplotype returns designator unchanged when it already names both alleles,
// and designator/designator otherwise.
func Diplotype(designator string) string {
	if strings.Contains(designator, "/") {
		return designator
	}
	return designator + "/" + designator
}

// Confidence scores a risk call from the phenotype, label and how many of the
// drug's required genes were detected. The score is capped at 0.99.
func Confidence(phenotype domain.Phenotype, label domain.RiskLabel, genesFound, totalGenes int) (float64, string) {
	allAvailable := genesFound >= totalGenes

	score := baseConfidence
	if phenotype == domain.PhenotypeNormal && label == domain.RiskSafe {
		score += normalSafeBonus
	}
	if allAvailable {
		score += allGenesBonus
	}

	completeness := 0.0
	if totalGenes > 0 {
		completeness = float64(genesFound) / float64(totalGenes)
	}
	score += completeness * completenessWeight

	availability := "partial"
	if allAvailable {
		availability = "full"
	}
	basis := fmt.Sprintf(
		"Confidence based on phenotype (%s), risk (%s), data completeness (%.1f%%), and gene availability (%s).",
		phenotype, label, completeness*100, availability,
	)

	return math.Min(score, maxConfidence), basis
}
