package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pharmguard-mcp-server/internal/service"
)

func newDrugsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drugs",
		Short: "List supported drugs and the genes they depend on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kb, err := root.knowledgeBase()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DRUG\tGENES\tALTERNATIVE")
			for _, drug := range kb.SupportedDrugs() {
				genes, _ := kb.RequiredGenes(drug)
				alt, _ := kb.Alternative(drug)
				if alt == "" {
					alt = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", drug, strings.Join(genes, ", "), alt)
			}
			return tw.Flush()
		},
	}
}

func newClassifyCmd(root *rootOptions) *cobra.Command {
	var gene string

	cmd := &cobra.Command{
		Use:   "classify <star-allele>",
		Short: "Classify a star-allele designator into a metabolizer phenotype",
		Long: `Classify a star-allele designator such as *4 or *1/*2.

With --gene, also print the risk call for every drug whose primary gene it is:
  pharmguard classify '*4' --gene CYP2D6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			star := strings.TrimSpace(args[0])
			if star == "" {
				return fmt.Errorf("star-allele designator is required")
			}

			kb, err := root.knowledgeBase()
			if err != nil {
				return err
			}
			logger := root.logger(cmd.ErrOrStderr())
			phenotype := service.NewPhenotypeClassifier(kb).Classify(star)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Star:      %s\n", star)
			fmt.Fprintf(w, "Diplotype: %s\n", service.Diplotype(star))
			fmt.Fprintf(w, "Phenotype: %s\n", phenotype)

			gene = strings.ToUpper(strings.TrimSpace(gene))
			if gene == "" {
				return nil
			}

			engine := service.NewRiskEngine(kb, logger)
			matched := 0
			for _, drug := range kb.SupportedDrugs() {
				genes, _ := kb.RequiredGenes(drug)
				if len(genes) == 0 || genes[0] != gene {
					continue
				}
				matched++
				decision := engine.Evaluate(drug, phenotype)
				fmt.Fprintf(w, "  %-14s ", drug)
				_, _ = riskColor(decision.Label).Fprintf(w, "%s", decision.Label)
				fmt.Fprintf(w, " (%s) %s\n", decision.Severity, decision.Rationale)
			}
			if matched == 0 {
				_, _ = color.New(color.FgYellow).Fprintf(w, "No supported drug has %s as its primary gene\n", gene)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gene, "gene", "g", "", "Gene symbol used to list affected drugs")
	return cmd
}
