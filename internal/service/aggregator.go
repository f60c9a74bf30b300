package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// Aggregator ranks the drugs of one request from safest to riskiest.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Compare returns the ranking summary, or nil when fewer than two results
// were produced. Results with equal severity keep their request order.
func (a *Aggregator) Compare(results []*domain.AnalysisResult) *domain.DrugComparison {
	if len(results) < 2 {
		return nil
	}

	ranked := make([]*domain.AnalysisResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RiskAssessment.Severity.Rank() < ranked[j].RiskAssessment.Severity.Rank()
	})

	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Drug
	}
	recommended := names[0]

	return &domain.DrugComparison{
		RankedDrugs:          names,
		RecommendedFirstLine: recommended,
		Reasoning: fmt.Sprintf(
			"Drugs ranked from safest to highest risk based on pharmacogenomic severity: %s. Recommended first-line: %s due to lowest risk profile.",
			strings.Join(names, ", "), recommended,
		),
	}
}

// Attach computes the comparison and gives every result its own copy of it.
func (a *Aggregator) Attach(results []*domain.AnalysisResult) *domain.DrugComparison {
	summary := a.Compare(results)
	if summary == nil {
		return nil
	}
	for _, r := range results {
		c := *summary
		c.RankedDrugs = append([]string(nil), summary.RankedDrugs...)
		r.Comparison = &c
	}
	return summary
}
