// Package feedback stores clinician review of pharmacogenomic risk calls.
// A clinician either agrees with the suggested risk label for a drug and
// diplotype or records the label they would assign instead.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// Feedback represents a clinician's review of one risk call.
type Feedback struct {
	ID            int64            `json:"id,omitempty"`
	Drug          string           `json:"drug"`
	PrimaryGene   string           `json:"primary_gene"`
	Diplotype     string           `json:"diplotype"`
	Phenotype     domain.Phenotype `json:"phenotype"`
	SuggestedRisk domain.RiskLabel `json:"suggested_risk"` // label produced by the rule table
	ClinicianRisk domain.RiskLabel `json:"clinician_risk"` // label the clinician would assign
	Agreed        bool             `json:"agreed"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Normalize upper-cases identifiers and derives Agreed from the two labels.
func (f *Feedback) Normalize() {
	f.Drug = strings.ToUpper(strings.TrimSpace(f.Drug))
	f.PrimaryGene = strings.ToUpper(strings.TrimSpace(f.PrimaryGene))
	f.Diplotype = strings.TrimSpace(f.Diplotype)
	if f.ClinicianRisk == "" {
		f.ClinicianRisk = f.SuggestedRisk
	}
	f.Agreed = f.ClinicianRisk == f.SuggestedRisk
}

// Validate checks required fields and label values.
func (f *Feedback) Validate() error {
	if f.Drug == "" {
		return domain.NewValidationError("drug", "drug is required", f.Drug)
	}
	if f.Diplotype == "" {
		return domain.NewValidationError("diplotype", "diplotype is required", f.Diplotype)
	}
	if f.Phenotype != "" && !f.Phenotype.IsValid() {
		return domain.NewValidationError("phenotype", "unknown phenotype", f.Phenotype)
	}
	if !f.SuggestedRisk.IsValid() {
		return domain.NewValidationError("suggested_risk", "unknown risk label", f.SuggestedRisk)
	}
	if !f.ClinicianRisk.IsValid() {
		return domain.NewValidationError("clinician_risk", "unknown risk label", f.ClinicianRisk)
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Feedback for the same drug and
	// diplotype replaces the earlier entry.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves feedback for a drug and diplotype, or nil when none exists.
	Get(ctx context.Context, drug, diplotype string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	Count(ctx context.Context) (int64, error)

	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader, skipping entries that
	// already exist. Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const (
	exportVersion = "1.0"

	// maxExportLimit is the maximum number of entries to export at once.
	maxExportLimit = 1000000
)

func exportJSON(ctx context.Context, store Store, writer io.Writer) error {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	if all == nil {
		all = []*Feedback{}
	}

	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		existing, err := store.Get(ctx, fb.Drug, fb.Diplotype)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		if err := store.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
