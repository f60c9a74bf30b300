package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/service"
)

// MaxVCFBytes caps the VCF text accepted by analyze_pharmacogenomics.
const MaxVCFBytes = 5 * 1024 * 1024

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Toolset holds the collaborators behind the MCP tools. The feedback tools
// are only registered when a store is present.
type Toolset struct {
	analyzer  *service.Analyzer
	store     feedback.Store
	exportDir string
	logger    *logrus.Logger
}

// NewToolset creates a toolset. store may be nil.
func NewToolset(analyzer *service.Analyzer, store feedback.Store, exportDir string, logger *logrus.Logger) *Toolset {
	return &Toolset{
		analyzer:  analyzer,
		store:     store,
		exportDir: exportDir,
		logger:    logger,
	}
}

// AnalyzeInput defines parameters for analyze_pharmacogenomics
type AnalyzeInput struct {
	VCFContent string `json:"vcf_content" jsonschema:"Full text of a VCF file"`
	Drugs      string `json:"drugs" jsonschema:"Comma separated drug names such as CODEINE,WARFARIN"`
}

// AnalyzeOutput is the result of analyze_pharmacogenomics
type AnalyzeOutput struct {
	PatientID   string                   `json:"patient_id"`
	Count       int                      `json:"count"`
	Unsupported []string                 `json:"unsupported_drugs,omitempty"`
	Results     []*domain.AnalysisResult `json:"results"`
}

// ListDrugsInput takes no parameters.
type ListDrugsInput struct{}

// SupportedDrug describes one entry of list_supported_drugs
type SupportedDrug struct {
	Drug          string   `json:"drug"`
	RequiredGenes []string `json:"required_genes"`
	Alternative   string   `json:"alternative,omitempty"`
}

// ClassifyInput defines parameters for classify_star_allele
type ClassifyInput struct {
	Star string `json:"star" jsonschema:"Star-allele designator such as *4 or *1/*2"`
	Gene string `json:"gene,omitempty" jsonschema:"Optional gene symbol used to list affected drugs"`
}

// DrugImplication is the rule-table outcome for one drug at a phenotype.
type DrugImplication struct {
	Drug      string           `json:"drug"`
	RiskLabel domain.RiskLabel `json:"risk_label"`
	Severity  domain.Severity  `json:"severity"`
	Rationale string           `json:"rationale"`
}

// ClassifyOutput is the result of classify_star_allele
type ClassifyOutput struct {
	Star         string            `json:"star"`
	Gene         string            `json:"gene,omitempty"`
	Diplotype    string            `json:"diplotype"`
	Phenotype    domain.Phenotype  `json:"phenotype"`
	Implications []DrugImplication `json:"implications,omitempty"`
}

// SubmitFeedbackInput defines parameters for submit_feedback
type SubmitFeedbackInput struct {
	Drug          string `json:"drug" jsonschema:"Drug name"`
	PrimaryGene   string `json:"primary_gene,omitempty" jsonschema:"Primary gene for the drug"`
	Diplotype     string `json:"diplotype" jsonschema:"Diplotype the risk call was made for"`
	Phenotype     string `json:"phenotype,omitempty" jsonschema:"Metabolizer phenotype code (PM IM NM RM URM)"`
	SuggestedRisk string `json:"suggested_risk" jsonschema:"Risk label produced by the analysis"`
	ClinicianRisk string `json:"clinician_risk,omitempty" jsonschema:"Risk label the clinician would assign; omit to agree"`
	Notes         string `json:"notes,omitempty" jsonschema:"Free-text clinical notes"`
}

// QueryFeedbackInput defines parameters for query_feedback
type QueryFeedbackInput struct {
	Drug      string `json:"drug" jsonschema:"Drug name"`
	Diplotype string `json:"diplotype" jsonschema:"Diplotype"`
}

// ListFeedbackInput defines parameters for list_feedback
type ListFeedbackInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"Maximum entries to return"`
	Offset int `json:"offset,omitempty" jsonschema:"Entries to skip"`
}

// ExportFeedbackInput takes no parameters.
type ExportFeedbackInput struct{}

// ImportFeedbackInput defines parameters for import_feedback
type ImportFeedbackInput struct {
	FilePath string `json:"file_path" jsonschema:"Path to a JSON export file"`
}

// Register adds every tool to server.
func (t *Toolset) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_pharmacogenomics",
		Description: "Analyze a VCF for pharmacogenomic risk to the listed drugs using CPIC-style rules.",
	}, t.analyze)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_supported_drugs",
		Description: "List the drugs the risk rules cover and the genes each one needs.",
	}, t.listDrugs)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_star_allele",
		Description: "Classify a star-allele designator into a metabolizer phenotype and diplotype.",
	}, t.classify)

	if t.store == nil {
		t.logger.Info("Feedback store not configured, feedback tools disabled")
		return
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record a clinician's agreement with, or override of, a risk label for a drug and diplotype.",
	}, t.submitFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_feedback",
		Description: "Look up saved clinician feedback for a drug and diplotype.",
	}, t.queryFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_feedback",
		Description: "List saved clinician feedback, newest first.",
	}, t.listFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Export all saved feedback to a JSON file for backup.",
	}, t.exportFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_feedback",
		Description: "Import feedback from a JSON backup file. Existing entries are skipped.",
	}, t.importFeedback)
}

func (t *Toolset) analyze(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.VCFContent) == "" {
		return errorResult("vcf_content is required")
	}
	if len(in.VCFContent) > MaxVCFBytes {
		return errorResult(fmt.Sprintf("VCF exceeds %d byte limit", MaxVCFBytes))
	}

	drugs := service.ParseDrugList(in.Drugs)
	if len(drugs) == 0 {
		return errorResult("No drugs provided")
	}
	supported, unsupported := t.analyzer.SelectSupported(drugs)
	if len(supported) == 0 {
		return errorResult("No supported drugs requested. Supported: " +
			strings.Join(t.analyzer.KnowledgeBase().SupportedDrugs(), ", "))
	}

	results, err := t.analyzer.Analyze(ctx, []byte(in.VCFContent), drugs)
	if err != nil {
		return nil, nil, err
	}

	out := AnalyzeOutput{Count: len(results), Unsupported: unsupported, Results: results}
	if len(results) > 0 {
		out.PatientID = results[0].PatientID
	}
	return jsonResult(out)
}

func (t *Toolset) listDrugs(_ context.Context, _ *mcp.CallToolRequest, _ ListDrugsInput) (*mcp.CallToolResult, any, error) {
	kb := t.analyzer.KnowledgeBase()
	drugs := make([]SupportedDrug, 0, len(kb.SupportedDrugs()))
	for _, d := range kb.SupportedDrugs() {
		genes, _ := kb.RequiredGenes(d)
		alt, _ := kb.Alternative(d)
		drugs = append(drugs, SupportedDrug{Drug: d, RequiredGenes: genes, Alternative: alt})
	}
	return jsonResult(map[string]any{"drugs": drugs, "count": len(drugs)})
}

func (t *Toolset) classify(_ context.Context, _ *mcp.CallToolRequest, in ClassifyInput) (*mcp.CallToolResult, any, error) {
	star := strings.TrimSpace(in.Star)
	if star == "" {
		return errorResult("star is required")
	}

	phenotype := t.analyzer.Classifier().Classify(star)
	out := ClassifyOutput{
		Star:      star,
		Gene:      strings.ToUpper(strings.TrimSpace(in.Gene)),
		Diplotype: service.Diplotype(star),
		Phenotype: phenotype,
	}

	if out.Gene != "" {
		kb := t.analyzer.KnowledgeBase()
		engine := t.analyzer.Engine()
		for _, drug := range kb.SupportedDrugs() {
			genes, _ := kb.RequiredGenes(drug)
			if len(genes) == 0 || genes[0] != out.Gene {
				continue
			}
			decision := engine.Evaluate(drug, phenotype)
			out.Implications = append(out.Implications, DrugImplication{
				Drug:      drug,
				RiskLabel: decision.Label,
				Severity:  decision.Severity,
				Rationale: decision.Rationale,
			})
		}
	}

	return jsonResult(out)
}

func (t *Toolset) submitFeedback(ctx context.Context, _ *mcp.CallToolRequest, in SubmitFeedbackInput) (*mcp.CallToolResult, any, error) {
	fb := &feedback.Feedback{
		Drug:          in.Drug,
		PrimaryGene:   in.PrimaryGene,
		Diplotype:     in.Diplotype,
		Phenotype:     domain.Phenotype(strings.ToUpper(strings.TrimSpace(in.Phenotype))),
		SuggestedRisk: domain.RiskLabel(in.SuggestedRisk),
		ClinicianRisk: domain.RiskLabel(in.ClinicianRisk),
		Notes:         in.Notes,
	}

	if err := t.store.Save(ctx, fb); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return errorResult(vErr.Error())
		}
		t.logger.WithError(err).Error("Failed to save feedback")
		return nil, nil, fmt.Errorf("saving feedback: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"drug":      fb.Drug,
		"diplotype": fb.Diplotype,
		"agreed":    fb.Agreed,
	}).Info("Feedback saved")

	return jsonResult(map[string]any{"success": true, "feedback": fb})
}

func (t *Toolset) queryFeedback(ctx context.Context, _ *mcp.CallToolRequest, in QueryFeedbackInput) (*mcp.CallToolResult, any, error) {
	drug := strings.ToUpper(strings.TrimSpace(in.Drug))
	diplotype := strings.TrimSpace(in.Diplotype)

	fb, err := t.store.Get(ctx, drug, diplotype)
	if err != nil {
		return nil, nil, fmt.Errorf("querying feedback: %w", err)
	}
	if fb == nil {
		return jsonResult(map[string]any{
			"found":   false,
			"message": fmt.Sprintf("No feedback recorded for %s %s", drug, diplotype),
		})
	}
	return jsonResult(map[string]any{"found": true, "feedback": fb})
}

func (t *Toolset) listFeedback(ctx context.Context, _ *mcp.CallToolRequest, in ListFeedbackInput) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := max(in.Offset, 0)

	entries, err := t.store.List(ctx, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("listing feedback: %w", err)
	}
	total, err := t.store.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("counting feedback: %w", err)
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	return jsonResult(map[string]any{
		"feedback": entries,
		"count":    len(entries),
		"total":    total,
	})
}

func (t *Toolset) exportFeedback(ctx context.Context, _ *mcp.CallToolRequest, _ ExportFeedbackInput) (*mcp.CallToolResult, any, error) {
	if err := os.MkdirAll(t.exportDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating export directory: %w", err)
	}

	filename := fmt.Sprintf("feedback_export_%s.json", time.Now().Format("20060102_150405"))
	filePath := filepath.Join(t.exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	if err := t.store.ExportJSON(ctx, file); err != nil {
		t.logger.WithError(err).Error("Failed to export feedback")
		return nil, nil, fmt.Errorf("exporting feedback: %w", err)
	}

	count, _ := t.store.Count(ctx)
	return jsonResult(map[string]any{
		"success":   true,
		"file_path": filePath,
		"count":     count,
	})
}

func (t *Toolset) importFeedback(ctx context.Context, _ *mcp.CallToolRequest, in ImportFeedbackInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.FilePath) == "" {
		return errorResult("file_path is required")
	}

	file, err := os.Open(in.FilePath)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot open %s: %v", in.FilePath, err))
	}
	defer file.Close()

	imported, skipped, err := t.store.ImportJSON(ctx, file)
	if err != nil {
		return nil, nil, fmt.Errorf("importing feedback: %w", err)
	}

	return jsonResult(map[string]any{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}, nil, nil
}
