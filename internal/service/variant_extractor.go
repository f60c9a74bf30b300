package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/knowledge"
)

// Column layout of a tab-delimited variant record.
const (
	colChrom = 0
	colPos   = 1
	colID    = 2
	colRef   = 3
	colAlt   = 4
	colInfo  = 7

	minRecordFields = 8
)

// VariantExtractor reads variant records and keeps one call per target gene.
type VariantExtractor struct {
	kb     *knowledge.KnowledgeBase
	logger *logrus.Logger
}

// NewVariantExtractor creates a new variant extractor
func NewVariantExtractor(kb *knowledge.KnowledgeBase, logger *logrus.Logger) *VariantExtractor {
	return &VariantExtractor{
		kb:     kb,
		logger: logger,
	}
}

// Extract parses raw variant file content. Malformed lines never fail the
// extraction; they are counted and skipped. When several records resolve to
// the same gene the last one wins.
func (e *VariantExtractor) Extract(content []byte) *domain.ExtractionResult {
	result := &domain.ExtractionResult{
		Variants:  make(domain.VariantSet),
		SizeBytes: len(content),
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < minRecordFields {
			result.SkippedLines++
			continue
		}
		result.DataLines++

		call, ok := e.resolve(fields)
		if !ok {
			result.OffTarget++
			continue
		}
		result.Variants[call.Gene] = call
	}

	e.logger.WithFields(logrus.Fields{
		"data_lines":    result.DataLines,
		"skipped_lines": result.SkippedLines,
		"off_target":    result.OffTarget,
		"genes_found":   len(result.Variants),
	}).Debug("Variant extraction completed")

	return result
}

// resolve maps one record to a call. Catalog matches take precedence over the
// record's own annotation.
func (e *VariantExtractor) resolve(fields []string) (domain.VariantCall, bool) {
	rsid := fields[colID]

	var gene, star string
	if kv, ok := e.kb.LookupVariant(rsid); ok {
		gene, star = kv.Gene, kv.Star
	} else {
		info := parseInfo(fields[colInfo])
		gene = strings.ToUpper(info["GENE"])
		var ok bool
		if star, ok = info["STAR"]; !ok {
			star = domain.WildTypeAllele
		}
	}

	if !e.kb.IsTargetGene(gene) {
		return domain.VariantCall{}, false
	}

	return domain.VariantCall{
		Chromosome: fields[colChrom],
		Position:   fields[colPos],
		RSID:       rsid,
		Reference:  fields[colRef],
		Alternate:  fields[colAlt],
		Gene:       gene,
		StarAllele: star,
		Observed:   true,
	}, true
}

// parseInfo splits a KEY=VALUE;KEY=VALUE annotation. Entries without '=' are ignored.
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(info, ";") {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}
