package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/knowledge"
)

// defaultConcurrency caps how many drugs are analyzed at once.
const defaultConcurrency = 4

// Analyzer runs the full variant-to-risk pipeline for one request and
// assembles a report per recognized drug.
type Analyzer struct {
	kb          *knowledge.KnowledgeBase
	extractor   *VariantExtractor
	classifier  *PhenotypeClassifier
	engine      *RiskEngine
	explainer   *ExplanationAdapter
	aggregator  *Aggregator
	logger      *logrus.Logger
	concurrency int
	now         func() time.Time
	patientID   func() string
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithConcurrency sets how many drugs are evaluated in parallel.
func WithConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithPatientIDGenerator overrides how request patient ids are minted.
func WithPatientIDGenerator(gen func() string) AnalyzerOption {
	return func(a *Analyzer) {
		a.patientID = gen
	}
}

// NewAnalyzer creates a new analyzer over the given knowledge base
func NewAnalyzer(kb *knowledge.KnowledgeBase, explainer *ExplanationAdapter, logger *logrus.Logger, opts ...AnalyzerOption) *Analyzer {
	if explainer == nil {
		explainer = NewExplanationAdapter(nil, logger)
	}
	a := &Analyzer{
		kb:          kb,
		extractor:   NewVariantExtractor(kb, logger),
		classifier:  NewPhenotypeClassifier(kb),
		engine:      NewRiskEngine(kb, logger),
		explainer:   explainer,
		aggregator:  NewAggregator(),
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		patientID:   NewPatientID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// KnowledgeBase exposes the tables the analyzer was built with.
func (a *Analyzer) KnowledgeBase() *knowledge.KnowledgeBase {
	return a.kb
}

// Classifier exposes the phenotype classifier.
func (a *Analyzer) Classifier() *PhenotypeClassifier {
	return a.classifier
}

// Engine returns the rule-table engine.
func (a *Analyzer) Engine() *RiskEngine {
	return a.engine
}

// Analyze extracts variants from content and evaluates every drug in drugs.
// Unrecognized drugs are dropped without error, so the result may be shorter
// than drugs. Results keep request order. The only error returned is context
// cancellation before every drug was assembled; a deadline that only cut
// explanations short still yields the results.
func (a *Analyzer) Analyze(ctx context.Context, content []byte, drugs []string) ([]*domain.AnalysisResult, error) {
	start := time.Now()
	extraction := a.extractor.Extract(content)

	supported, unsupported := a.SelectSupported(drugs)
	if len(unsupported) > 0 {
		a.logger.WithField("drugs", unsupported).Info("Skipping unsupported drugs")
	}

	patientID := a.patientID()
	results := make([]*domain.AnalysisResult, len(supported))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, drug := range supported {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.AnalyzeDrug(gctx, extraction, drug, patientID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	a.aggregator.Attach(results)

	a.logger.WithFields(logrus.Fields{
		"patient_id":  patientID,
		"drugs":       len(results),
		"genes_found": len(extraction.Variants),
		"data_lines":  extraction.DataLines,
		"duration":    time.Since(start),
	}).Info("Pharmacogenomic analysis completed")

	return results, nil
}

// AnalyzeDrug assembles the report for one drug, or nil when the drug is not
// in the drug-gene map.
func (a *Analyzer) AnalyzeDrug(ctx context.Context, extraction *domain.ExtractionResult, drug, patientID string) *domain.AnalysisResult {
	genes, ok := a.kb.RequiredGenes(drug)
	if !ok {
		return nil
	}
	variants := extraction.Variants

	primary := genes[0]
	star := variants.AlleleFor(primary)
	phenotype := a.classifier.Classify(star)
	decision := a.engine.Evaluate(drug, phenotype)
	diplotype := Diplotype(star)

	found := make([]string, 0, len(genes))
	missing := make([]string, 0, len(genes))
	detected := make([]domain.VariantCall, 0, len(genes))
	for _, gene := range genes {
		call, ok := variants[gene]
		if !ok {
			missing = append(missing, gene)
			continue
		}
		found = append(found, gene)
		if call.Detected() {
			detected = append(detected, call)
		}
	}
	allAvailable := len(missing) == 0
	confidence, basis := Confidence(phenotype, decision.Label, len(found), len(genes))

	ec := BuildExplanationContext(drug, genes, variants, phenotype, diplotype, decision)
	explanation := a.explainer.Explain(ctx, ec)

	return &domain.AnalysisResult{
		PatientID: patientID,
		Drug:      drug,
		Timestamp: a.now(),
		RiskAssessment: domain.RiskAssessment{
			RiskLabel:       decision.Label,
			ConfidenceScore: confidence,
			Severity:        decision.Severity,
			ConfidenceBasis: basis,
		},
		PharmacogenomicProfile: domain.PharmacogenomicProfile{
			PrimaryGene:      primary,
			Genes:            genes,
			Diplotype:        diplotype,
			Phenotype:        phenotype,
			DetectedVariants: detected,
		},
		ClinicalRecommendation: domain.ClinicalRecommendation{
			Guideline:                 domain.CPICGuideline,
			Recommendation:            decision.Rationale,
			AlternativeDrugSuggestion: a.engine.Alternative(drug, decision.Label),
		},
		Explanation: &domain.ExplanationBlock{Structured: explanation},
		QualityMetrics: domain.QualityMetrics{
			VCFParsingSuccess:         extraction.ParsingSucceeded(),
			GenesFound:                found,
			AllRequiredGenesAvailable: allAvailable,
			InputFileSizeBytes:        extraction.SizeBytes,
			GenesNotDetected:          missing,
			IncompleteVariantData:     !allAvailable,
			ParsingWarnings:           parsingWarnings(extraction),
		},
		ClinicalAlert: a.engine.Alert(decision.Label, decision.Severity),
		DecisionPath:  DecisionPath(star, phenotype, decision),
	}
}

// SelectSupported splits drugs into those in the drug-gene map and the rest,
// preserving order.
func (a *Analyzer) SelectSupported(drugs []string) (supported, unsupported []string) {
	for _, d := range drugs {
		if a.kb.IsSupported(d) {
			supported = append(supported, d)
		} else {
			unsupported = append(unsupported, d)
		}
	}
	return supported, unsupported
}

// DecisionPath renders the human-readable trace of a risk call.
func DecisionPath(star string, phenotype domain.Phenotype, decision RiskDecision) string {
	return fmt.Sprintf("Variant (%s) → Phenotype (%s) → Risk (%s) → Recommendation (%s)",
		star, phenotype, decision.Label, decision.Rationale)
}

// ParseDrugList normalizes a comma-separated drug list: upper case, spaces
// removed, empty entries dropped.
func ParseDrugList(raw string) []string {
	cleaned := strings.ReplaceAll(strings.ToUpper(raw), " ", "")
	var drugs []string
	for _, d := range strings.Split(cleaned, ",") {
		if d != "" {
			drugs = append(drugs, d)
		}
	}
	return drugs
}

// NewPatientID mints a request identifier of the form PATIENT_XXXXXX.
func NewPatientID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PATIENT_" + strings.ToUpper(hex[:6])
}

func parsingWarnings(extraction *domain.ExtractionResult) []string {
	warnings := []string{}
	if extraction.SkippedLines > 0 {
		warnings = append(warnings, fmt.Sprintf("%d line(s) with fewer than 8 fields skipped", extraction.SkippedLines))
	}
	return warnings
}
