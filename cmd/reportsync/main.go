package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ReportSync/internal/app"
	"ReportSync/internal/config"
	"ReportSync/internal/envelope"
	"ReportSync/internal/logging"
)

var (
	configPath     string
	logLevel       string
	narrativePath  string
	priorPath      string
	outPath        string
	skipValidation bool
)

var rootCmd = &cobra.Command{
	Use:   "reportsync",
	Short: "Reconcile monthly narrative reports with the statistics workbook",
	Long: `reportsync reads a monthly narrative report (docx or html), extracts the
stated metrics and the per-article breakdown, cross-checks the arithmetic
and reconciles the numbers into the prior statistics workbook.

Logs go to stderr; every operation prints one JSON envelope to stdout.`,
	SilenceUsage: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Parse, cross-check and preview updates without writing anything",
	RunE:  runAnalyze,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the full pipeline and write the updated workbook",
	RunE:  runGenerate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Describe the sheets and row labels of a workbook",
	RunE:  runInspect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML rules file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{analyzeCmd, generateCmd} {
		cmd.Flags().StringVar(&narrativePath, "narrative", "", "narrative report to read (.docx or .html)")
		cmd.Flags().StringVar(&priorPath, "prior", "", "prior statistics workbook (.xlsx)")
		cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "apply updates even when validation finds errors")
		cmd.MarkFlagRequired("narrative")
		cmd.MarkFlagRequired("prior")
	}
	generateCmd.Flags().StringVar(&outPath, "out", "", "artifact path (.xlsx) or directory for the default name")

	inspectCmd.Flags().StringVar(&priorPath, "prior", "", "workbook to describe")
	inspectCmd.MarkFlagRequired("prior")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
}

func buildApp() (*app.Application, error) {
	cfg := config.Load(configPath)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return app.New(cfg, logging.New(cfg.Logging.Level))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	application, err := buildApp()
	if err != nil {
		return finish(envelope.Fatal(err, "invalid configuration", nil), app.ExitFatal)
	}
	env, code := application.Analyze(cmd.Context(), narrativePath, priorPath, skipValidation)
	return finish(env, code)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	application, err := buildApp()
	if err != nil {
		return finish(envelope.Fatal(err, "invalid configuration", nil), app.ExitFatal)
	}
	env, code := application.Generate(cmd.Context(), narrativePath, priorPath, outPath, skipValidation)
	return finish(env, code)
}

func runInspect(cmd *cobra.Command, args []string) error {
	application, err := buildApp()
	if err != nil {
		return finish(envelope.Fatal(err, "invalid configuration", nil), app.ExitFatal)
	}
	env, code := application.Inspect(priorPath)
	return finish(env, code)
}

// finish prints the envelope and turns a nonzero code into the process exit
// status. The envelope is the only thing written to stdout.
func finish(env envelope.Envelope, code int) error {
	if err := env.Write(os.Stdout); err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
