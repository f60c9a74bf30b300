package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pharmguard-mcp-server/internal/domain"
)

func TestFeedback_Normalize(t *testing.T) {
	fb := &Feedback{
		Drug:          " clopidogrel ",
		PrimaryGene:   "cyp2c19",
		Diplotype:     " *2/*2 ",
		SuggestedRisk: domain.RiskIneffective,
	}

	fb.Normalize()

	assert.Equal(t, "CLOPIDOGREL", fb.Drug)
	assert.Equal(t, "CYP2C19", fb.PrimaryGene)
	assert.Equal(t, "*2/*2", fb.Diplotype)
	assert.Equal(t, domain.RiskIneffective, fb.ClinicianRisk, "missing clinician label means agreement")
	assert.True(t, fb.Agreed)
}

func TestFeedback_Validate(t *testing.T) {
	valid := func() *Feedback {
		return &Feedback{
			Drug:          "CODEINE",
			Diplotype:     "*4/*4",
			Phenotype:     domain.PhenotypePoor,
			SuggestedRisk: domain.RiskToxic,
			ClinicianRisk: domain.RiskToxic,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Feedback)
		field  string
	}{
		{"valid", func(*Feedback) {}, ""},
		{"missing drug", func(f *Feedback) { f.Drug = "" }, "drug"},
		{"missing diplotype", func(f *Feedback) { f.Diplotype = "" }, "diplotype"},
		{"bad phenotype", func(f *Feedback) { f.Phenotype = "XM" }, "phenotype"},
		{"bad suggested risk", func(f *Feedback) { f.SuggestedRisk = "Fine" }, "suggested_risk"},
		{"bad clinician risk", func(f *Feedback) { f.ClinicianRisk = "" }, "clinician_risk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := valid()
			tt.mutate(fb)

			err := fb.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *domain.ValidationError
			if assert.ErrorAs(t, err, &vErr) {
				assert.Equal(t, tt.field, vErr.Field)
			}
		})
	}
}
