package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/service"
)

// maxVCFBytes matches the upload limit of the HTTP surface.
const maxVCFBytes = 5 * 1024 * 1024

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		drugs  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "analyze <vcf-file>",
		Short: "Assess drug risk from a VCF file",
		Long: `Analyze a VCF file against one or more drugs.

Examples:
  pharmguard analyze patient.vcf --drugs CODEINE
  pharmguard analyze patient.vcf --drugs codeine,warfarin --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format %q (text, json)", format)
			}
			return runAnalyze(cmd, root, args[0], drugs, format)
		},
	}

	cmd.Flags().StringVarP(&drugs, "drugs", "d", "", "Comma-separated drug names")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	_ = cmd.MarkFlagRequired("drugs")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, path, rawDrugs, format string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if info.Size() > maxVCFBytes {
		return fmt.Errorf("%s exceeds the %d byte limit", path, maxVCFBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read VCF: %w", err)
	}

	drugs := service.ParseDrugList(rawDrugs)
	if len(drugs) == 0 {
		return fmt.Errorf("no drugs provided")
	}

	analyzer, provider, err := root.analyzer(root.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	supported, unsupported := analyzer.SelectSupported(drugs)
	if len(unsupported) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipping unsupported drugs: %s\n", strings.Join(unsupported, ", "))
	}
	if len(supported) == 0 {
		return fmt.Errorf("no supported drugs requested; supported: %s",
			strings.Join(analyzer.KnowledgeBase().SupportedDrugs(), ", "))
	}

	results, err := analyzer.Analyze(cmd.Context(), content, supported)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(cmd.OutOrStdout(), results, provider)
	return nil
}

func riskColor(label domain.RiskLabel) *color.Color {
	switch label {
	case domain.RiskSafe:
		return color.New(color.FgGreen, color.Bold)
	case domain.RiskAdjustDosage:
		return color.New(color.FgYellow, color.Bold)
	case domain.RiskToxic, domain.RiskIneffective:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgHiBlack, color.Bold)
	}
}

func printResults(w io.Writer, results []*domain.AnalysisResult, provider string) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	if len(results) > 0 {
		_, _ = dim.Fprintf(w, "Patient %s | explanations: %s\n", results[0].PatientID, provider)
	}

	for _, r := range results {
		fmt.Fprintln(w)
		_, _ = bold.Fprintf(w, "%s  ", r.Drug)
		_, _ = riskColor(r.RiskAssessment.RiskLabel).Fprintf(w, "[%s]", strings.ToUpper(string(r.RiskAssessment.RiskLabel)))
		fmt.Fprintf(w, "  severity %s, confidence %.2f\n", r.RiskAssessment.Severity, r.RiskAssessment.ConfidenceScore)

		p := r.PharmacogenomicProfile
		fmt.Fprintf(w, "  Gene:       %s %s (%s)\n", p.PrimaryGene, p.Diplotype, p.Phenotype)
		fmt.Fprintf(w, "  Variants:   %d detected\n", len(p.DetectedVariants))
		fmt.Fprintf(w, "  Action:     %s\n", r.ClinicalRecommendation.Recommendation)
		if alt := r.ClinicalRecommendation.AlternativeDrugSuggestion; alt != "" {
			fmt.Fprintf(w, "  Consider:   %s\n", alt)
		}
		if r.RequiresAlert() {
			_, _ = color.New(color.FgRed).Fprintf(w, "  ALERT:      %s\n", r.ClinicalAlert.Message)
		}
		if len(r.QualityMetrics.GenesNotDetected) > 0 {
			_, _ = dim.Fprintf(w, "  Not detected: %s\n", strings.Join(r.QualityMetrics.GenesNotDetected, ", "))
		}
		if r.Explanation != nil && r.Explanation.Structured.GeneticFinding != "" {
			_, _ = dim.Fprintf(w, "  %s\n", r.Explanation.Structured.GeneticFinding)
		}
		_, _ = dim.Fprintf(w, "  %s\n", r.DecisionPath)
	}

	if len(results) > 0 && results[0].Comparison != nil {
		c := results[0].Comparison
		fmt.Fprintln(w)
		_, _ = bold.Fprintln(w, "Comparison")
		fmt.Fprintf(w, "  Ranked:     %s\n", strings.Join(c.RankedDrugs, " > "))
		fmt.Fprintf(w, "  First line: %s\n", c.RecommendedFirstLine)
	}
}
