// Package knowledge holds the static pharmacogenomic tables the risk pipeline
// consults: the known-variant catalog, target genes, drug-to-gene requirements,
// the drug/phenotype rule table, the severity map and alternative therapies.
//
// A KnowledgeBase is built once at startup and never mutated, so a single
// instance is shared by concurrent requests without locking.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pharmguard-mcp-server/internal/domain"
)

//go:embed default.yaml
var defaultTables []byte

// KnownVariant is a catalog entry resolving a reference id to a gene and allele.
type KnownVariant struct {
	Gene string `yaml:"gene"`
	Star string `yaml:"star"`
}

// Rule is one drug/phenotype outcome.
type Rule struct {
	Risk      domain.RiskLabel `yaml:"risk"`
	Rationale string           `yaml:"rationale"`
}

// Drug describes what the pipeline knows about one drug.
type Drug struct {
	Genes       []string                  `yaml:"genes"`
	Alternative string                    `yaml:"alternative"`
	Rules       map[domain.Phenotype]Rule `yaml:"rules"`
}

// PhenotypeMarkers are the allele designators checked, in priority order, when
// classifying a metabolizer phenotype.
type PhenotypeMarkers struct {
	Poor         []string `yaml:"poor"`
	Intermediate []string `yaml:"intermediate"`
	UltraRapid   []string `yaml:"ultra_rapid"`
}

type tables struct {
	TargetGenes      []string                             `yaml:"target_genes"`
	KnownVariants    map[string]KnownVariant              `yaml:"known_variants"`
	PhenotypeMarkers PhenotypeMarkers                     `yaml:"phenotype_markers"`
	Severity         map[domain.RiskLabel]domain.Severity `yaml:"severity"`
	Drugs            map[string]Drug                      `yaml:"drugs"`
}

// KnowledgeBase is the immutable, process-wide set of lookup tables.
type KnowledgeBase struct {
	targetGenes   map[string]struct{}
	geneOrder     []string
	knownVariants map[string]KnownVariant
	markers       PhenotypeMarkers
	severity      map[domain.RiskLabel]domain.Severity
	drugs         map[string]Drug
	drugNames     []string
}

// Default returns the knowledge base built from the embedded tables.
func Default() (*KnowledgeBase, error) {
	return Parse(defaultTables)
}

// MustDefault is Default for callers that cannot proceed without the built-in tables.
func MustDefault() *KnowledgeBase {
	kb, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded knowledge tables are invalid: %v", err))
	}
	return kb
}

// Load reads tables from path, or returns the embedded defaults when path is empty.
func Load(path string) (*KnowledgeBase, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge tables %s: %w", path, err)
	}
	kb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge tables %s: %w", path, err)
	}
	return kb, nil
}

// Parse builds a knowledge base from YAML table data.
func Parse(data []byte) (*KnowledgeBase, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing knowledge tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	kb := &KnowledgeBase{
		targetGenes:   make(map[string]struct{}, len(t.TargetGenes)),
		knownVariants: make(map[string]KnownVariant, len(t.KnownVariants)),
		markers:       t.PhenotypeMarkers,
		severity:      make(map[domain.RiskLabel]domain.Severity, len(t.Severity)),
		drugs:         make(map[string]Drug, len(t.Drugs)),
	}

	for _, gene := range t.TargetGenes {
		gene = strings.ToUpper(gene)
		if _, dup := kb.targetGenes[gene]; dup {
			continue
		}
		kb.targetGenes[gene] = struct{}{}
		kb.geneOrder = append(kb.geneOrder, gene)
	}
	for rsid, kv := range t.KnownVariants {
		kv.Gene = strings.ToUpper(kv.Gene)
		kb.knownVariants[rsid] = kv
	}
	for label, sev := range t.Severity {
		kb.severity[label] = sev
	}
	for name, drug := range t.Drugs {
		name = strings.ToUpper(name)
		genes := make([]string, len(drug.Genes))
		for i, g := range drug.Genes {
			genes[i] = strings.ToUpper(g)
		}
		drug.Genes = genes
		kb.drugs[name] = drug
		kb.drugNames = append(kb.drugNames, name)
	}
	sort.Strings(kb.drugNames)

	return kb, nil
}

func (t *tables) validate() error {
	if len(t.TargetGenes) == 0 {
		return fmt.Errorf("knowledge tables: target_genes is empty")
	}
	if len(t.Drugs) == 0 {
		return fmt.Errorf("knowledge tables: drugs is empty")
	}
	for name, drug := range t.Drugs {
		if len(drug.Genes) == 0 {
			return fmt.Errorf("knowledge tables: drug %s has no required genes", name)
		}
		for phenotype, rule := range drug.Rules {
			if !phenotype.IsValid() {
				return fmt.Errorf("knowledge tables: drug %s: %w: %q", name, domain.ErrInvalidPhenotype, phenotype)
			}
			if !rule.Risk.IsValid() {
				return fmt.Errorf("knowledge tables: drug %s/%s: %w: %q", name, phenotype, domain.ErrInvalidRiskLabel, rule.Risk)
			}
		}
	}
	for label, sev := range t.Severity {
		if !sev.IsValid() {
			return fmt.Errorf("knowledge tables: severity for %s: %w: %q", label, domain.ErrInvalidSeverity, sev)
		}
	}
	for rsid, kv := range t.KnownVariants {
		if kv.Gene == "" || kv.Star == "" {
			return fmt.Errorf("knowledge tables: known variant %s needs gene and star", rsid)
		}
	}
	return nil
}

// LookupVariant resolves a reference id through the known-variant catalog.
func (kb *KnowledgeBase) LookupVariant(rsid string) (KnownVariant, bool) {
	kv, ok := kb.knownVariants[rsid]
	return kv, ok
}

// IsTargetGene reports whether variants for gene are retained by extraction.
func (kb *KnowledgeBase) IsTargetGene(gene string) bool {
	_, ok := kb.targetGenes[gene]
	return ok
}

// TargetGenes returns the target gene set in table order.
func (kb *KnowledgeBase) TargetGenes() []string {
	return append([]string(nil), kb.geneOrder...)
}

// RequiredGenes returns the ordered gene list for a drug; the first entry is
// the primary gene.
func (kb *KnowledgeBase) RequiredGenes(drug string) ([]string, bool) {
	d, ok := kb.drugs[drug]
	if !ok {
		return nil, false
	}
	return append([]string(nil), d.Genes...), true
}

// IsSupported reports whether the drug appears in the drug-gene map.
func (kb *KnowledgeBase) IsSupported(drug string) bool {
	_, ok := kb.drugs[drug]
	return ok
}

// SupportedDrugs returns every drug name in sorted order.
func (kb *KnowledgeBase) SupportedDrugs() []string {
	return append([]string(nil), kb.drugNames...)
}

// Rule returns the rule-table entry for a drug and phenotype.
func (kb *KnowledgeBase) Rule(drug string, phenotype domain.Phenotype) (Rule, bool) {
	d, ok := kb.drugs[drug]
	if !ok {
		return Rule{}, false
	}
	r, ok := d.Rules[phenotype]
	return r, ok
}

// Severity maps a risk label to its severity tier.
func (kb *KnowledgeBase) Severity(label domain.RiskLabel) (domain.Severity, bool) {
	s, ok := kb.severity[label]
	return s, ok
}

// Alternative returns the alternative-therapy text configured for a drug.
func (kb *KnowledgeBase) Alternative(drug string) (string, bool) {
	d, ok := kb.drugs[drug]
	if !ok || d.Alternative == "" {
		return "", false
	}
	return d.Alternative, true
}

// Markers returns the phenotype designator lists.
func (kb *KnowledgeBase) Markers() PhenotypeMarkers {
	return PhenotypeMarkers{
		Poor:         append([]string(nil), kb.markers.Poor...),
		Intermediate: append([]string(nil), kb.markers.Intermediate...),
		UltraRapid:   append([]string(nil), kb.markers.UltraRapid...),
	}
}
