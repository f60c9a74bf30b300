package domain

// WildTypeAllele is the designator assumed for a gene with no detected call.
const WildTypeAllele = "*1"

// VariantCall is one detected variant for a gene.
type VariantCall struct {
	Chromosome string `json:"chrom,omitempty"`
	Position   string `json:"pos,omitempty"`
	RSID       string `json:"rsid,omitempty"`
	Reference  string `json:"ref,omitempty"`
	Alternate  string `json:"alt,omitempty"`
	Gene       string `json:"gene"`
	StarAllele string `json:"star"`

	// Observed is set for calls read from an input record.
	Observed bool `json:"-"`
}

// WildType returns the placeholder call used when a required gene was not detected.
func WildType(gene string) VariantCall {
	return VariantCall{Gene: gene, StarAllele: WildTypeAllele}
}

// Detected reports whether the call came from an input record rather than
// being a wild-type placeholder.
func (v VariantCall) Detected() bool {
	return v.Observed
}

// VariantSet maps gene symbol to the single variant call kept for that gene.
type VariantSet map[string]VariantCall

// Has reports whether a call was recorded for the gene.
func (vs VariantSet) Has(gene string) bool {
	_, ok := vs[gene]
	return ok
}

// AlleleFor returns the designator for the gene, or the wild-type allele when absent.
func (vs VariantSet) AlleleFor(gene string) string {
	if call, ok := vs[gene]; ok && call.StarAllele != "" {
		return call.StarAllele
	}
	return WildTypeAllele
}

// ExtractionResult is the outcome of reading one variant file.
type ExtractionResult struct {
	Variants     VariantSet `json:"variants"`
	DataLines    int        `json:"data_lines"`
	SkippedLines int        `json:"skipped_lines"`
	OffTarget    int        `json:"off_target"`
	SizeBytes    int        `json:"size_bytes"`
}

// ParsingSucceeded is true when at least one well-formed data record was read.
func (r *ExtractionResult) ParsingSucceeded() bool {
	return r.DataLines > 0
}
