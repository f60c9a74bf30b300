package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmguard-mcp-server/internal/config"
	"github.com/pharmguard-mcp-server/internal/knowledge"
	"github.com/pharmguard-mcp-server/internal/service"
)

const version = "1.0.0"

type rootOptions struct {
	knowledgePath string
	provider      string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "pharmguard",
		Short: "Pharmacogenomic drug-risk analysis",
		Long: `PharmGuard reads a VCF file, resolves variants in the pharmacogenes
CYP2D6, CYP2C19, CYP2C9, SLCO1B1, TPMT, DPYD, VKORC1 and NUDT15, and
assigns a CPIC-based risk label to each requested drug.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.knowledgePath, "knowledge", "", "YAML file overriding the built-in knowledge tables")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "Explanation provider (groq, anthropic, none); defaults to PHARMGUARD_EXPLANATION_PROVIDER")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newDrugsCmd(opts),
		newClassifyCmd(opts),
		newSetupCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("pharmguard v%s\n", version)
		},
	}
}

func (o *rootOptions) logger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if o.verbose {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func (o *rootOptions) knowledgeBase() (*knowledge.KnowledgeBase, error) {
	if o.knowledgePath == "" {
		return knowledge.Default()
	}
	return knowledge.Load(o.knowledgePath)
}

// analyzer wires the pipeline the same way the lite MCP server does, minus
// the feedback store.
func (o *rootOptions) analyzer(logger *logrus.Logger) (*service.Analyzer, string, error) {
	kb, err := o.knowledgeBase()
	if err != nil {
		return nil, "", err
	}

	cfg := config.LoadLiteConfig()
	if o.provider != "" {
		cfg.ExplanationProvider = o.provider
	}

	explainer, provider, err := service.NewConfiguredExplainer(cfg.Explanation(), nil, 0, logger)
	if err != nil {
		return nil, "", err
	}
	return service.NewAnalyzer(kb, explainer, logger), provider, nil
}
