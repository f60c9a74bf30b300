// Package domain contains core business entities and types for pharmacogenomic
// risk assessment: variant calls, metabolizer phenotypes, drug risk labels and the
// per-drug analysis report assembled from them.
//
// Phenotype and risk vocabulary follows CPIC (Clinical Pharmacogenetics
// Implementation Consortium) terminology.
package domain

import (
	"errors"
)

// RiskLabel is the drug-specific outcome looked up for a metabolizer phenotype.
type RiskLabel string

const (
	RiskSafe         RiskLabel = "Safe"
	RiskAdjustDosage RiskLabel = "Adjust Dosage"
	RiskToxic        RiskLabel = "Toxic"
	RiskIneffective  RiskLabel = "Ineffective"
	RiskUnknown      RiskLabel = "Unknown"
)

// Severity is the ordered risk tier used for ranking drugs against each other.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Phenotype is the metabolizer category inferred from an allele designator.
type Phenotype string

const (
	PhenotypePoor         Phenotype = "PM"
	PhenotypeIntermediate Phenotype = "IM"
	PhenotypeNormal       Phenotype = "NM"
	PhenotypeRapid        Phenotype = "RM"
	PhenotypeUltraRapid   Phenotype = "URM"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRiskLabel = errors.New("invalid risk label")
	ErrInvalidPhenotype = errors.New("invalid phenotype")
	ErrInvalidSeverity  = errors.New("invalid severity")
)

// IsValid reports whether the label is one of the known rule-table outcomes.
func (r RiskLabel) IsValid() bool {
	switch r {
	case RiskSafe, RiskAdjustDosage, RiskToxic, RiskIneffective, RiskUnknown:
		return true
	default:
		return false
	}
}

func (r RiskLabel) String() string {
	return string(r)
}

// RequiresIntervention is true for outcomes where the drug should be avoided or
// replaced rather than dose-adjusted.
func (r RiskLabel) RequiresIntervention() bool {
	return r == RiskToxic || r == RiskIneffective
}

// LogFields returns structured logging fields for audit trails.
func (r RiskLabel) LogFields() map[string]any {
	return map[string]any{
		"risk_label":            string(r),
		"is_valid":              r.IsValid(),
		"requires_intervention": r.RequiresIntervention(),
	}
}

// severityRanks orders severities from safest to riskiest.
var severityRanks = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// UnrankedSeverity is the rank given to severities outside the known set.
const UnrankedSeverity = 5

// Rank returns the position of the severity in the total order
// none < low < moderate < high < critical. Unknown values rank last.
func (s Severity) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}
	return UnrankedSeverity
}

func (s Severity) IsValid() bool {
	_, ok := severityRanks[s]
	return ok
}

func (s Severity) String() string {
	return string(s)
}

func (p Phenotype) IsValid() bool {
	switch p {
	case PhenotypePoor, PhenotypeIntermediate, PhenotypeNormal, PhenotypeRapid, PhenotypeUltraRapid:
		return true
	default:
		return false
	}
}

func (p Phenotype) String() string {
	return string(p)
}

// Description returns the long-form metabolizer name used in clinical reports.
func (p Phenotype) Description() string {
	switch p {
	case PhenotypePoor:
		return "Poor Metabolizer"
	case PhenotypeIntermediate:
		return "Intermediate Metabolizer"
	case PhenotypeNormal:
		return "Normal Metabolizer"
	case PhenotypeRapid:
		return "Rapid Metabolizer"
	case PhenotypeUltraRapid:
		return "Ultra-rapid Metabolizer"
	default:
		return "Unknown phenotype"
	}
}

// ParseRiskLabel validates a free-form label, typically from feedback input.
func ParseRiskLabel(s string) (RiskLabel, error) {
	r := RiskLabel(s)
	if !r.IsValid() {
		return "", ErrInvalidRiskLabel
	}
	return r, nil
}
