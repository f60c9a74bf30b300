package service

import (
	"strings"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/knowledge"
)

// PhenotypeClassifier maps an allele designator to a metabolizer phenotype.
//
// Matching is substring containment, checked poor, then intermediate, then
// ultra-rapid, so "*41" classifies as PM because it contains "*4".
type PhenotypeClassifier struct {
	markers knowledge.PhenotypeMarkers
}

func NewPhenotypeClassifier(kb *knowledge.KnowledgeBase) *PhenotypeClassifier {
	return &PhenotypeClassifier{markers: kb.Markers()}
}

// Classify returns the phenotype for designator, NM when no marker matches.
func (c *PhenotypeClassifier) Classify(designator string) domain.Phenotype {
	switch {
	case containsAny(designator, c.markers.Poor):
		return domain.PhenotypePoor
	case containsAny(designator, c.markers.Intermediate):
		return domain.PhenotypeIntermediate
	case containsAny(designator, c.markers.UltraRapid):
		return domain.PhenotypeUltraRapid
	default:
		return domain.PhenotypeNormal
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
