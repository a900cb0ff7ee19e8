package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ReportSync/internal/config"
	"ReportSync/internal/crosscheck"
	"ReportSync/internal/envelope"
	"ReportSync/internal/extract"
	"ReportSync/internal/infrastructure/parser"
	"ReportSync/internal/infrastructure/workbook"
	"ReportSync/internal/logging"
	"ReportSync/internal/narrative"
	"ReportSync/internal/plan"
	"ReportSync/internal/rules"
	"ReportSync/internal/usecase"
	"ReportSync/internal/validate"
)

// Process exit codes. Fatal failures and validation stops are distinct so
// wrapping scripts can retry one and page on the other.
const (
	ExitOK         = 0
	ExitFatal      = 1
	ExitValidation = 2
)

// Application wires configs to the pipeline and translates outcomes into
// envelopes and exit codes.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

// New builds a runnable application instance. Rule and check config is parsed
// up front so a broken config file fails before any input is read.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	baseLogger = baseLogger.With("run_id", uuid.NewString()[:8])

	registry, err := rules.FromConfig(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metric rules: %w", err)
	}
	checks, err := crosscheck.NewEngine(cfg.Checks, baseLogger.With("component", "crosscheck"))
	if err != nil {
		return nil, fmt.Errorf("cross-checks: %w", err)
	}
	planner, err := plan.NewPlanner(cfg.Workbook, baseLogger.With("component", "plan"))
	if err != nil {
		return nil, fmt.Errorf("workbook targets: %w", err)
	}

	readers := narrative.NewRegistry()
	readers.Register(parser.NewDocxReader())
	readers.Register(parser.NewHTMLReader())

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    parser.NewFormatSource(readers, baseLogger.With("component", "source")),
		Extractor: extract.NewExtractor(registry, cfg.Articles, baseLogger.With("component", "extract")),
		Checks:    checks,
		Validator: validate.NewValidator(baseLogger.With("component", "validate")),
		Planner:   planner,
		Workbooks: workbook.NewOpener(baseLogger.With("component", "workbook")),
		Logger:    baseLogger.With("component", "pipeline"),
	})
	return &Application{cfg: cfg, pipeline: pipeline, logger: baseLogger}, nil
}

// Analyze runs the read-only pipeline over one narrative and prior workbook.
func (a *Application) Analyze(ctx context.Context, narrativePath, workbookPath string, skipValidation bool) (envelope.Envelope, int) {
	res, err := a.pipeline.Run(ctx, usecase.Request{
		Operation:      usecase.OpAnalyze,
		NarrativePath:  narrativePath,
		WorkbookPath:   workbookPath,
		SkipValidation: skipValidation,
	})
	return a.render(res, err)
}

// Generate runs the full pipeline and writes the updated workbook artifact.
func (a *Application) Generate(ctx context.Context, narrativePath, workbookPath, outPath string, skipValidation bool) (envelope.Envelope, int) {
	res, err := a.pipeline.Run(ctx, usecase.Request{
		Operation:      usecase.OpGenerate,
		NarrativePath:  narrativePath,
		WorkbookPath:   workbookPath,
		OutPath:        outPath,
		SkipValidation: skipValidation,
	})
	return a.render(res, err)
}

// Inspect dumps the sheet structure of a workbook without touching it.
func (a *Application) Inspect(workbookPath string) (envelope.Envelope, int) {
	sheets, err := a.pipeline.Inspect(workbookPath)
	if err != nil {
		a.logger.Error("inspect failed", "error", err)
		return envelope.Fatal(err, "failed reading the workbook", nil), ExitFatal
	}
	return envelope.Sheets(sheets), ExitOK
}

func (a *Application) render(res usecase.Result, err error) (envelope.Envelope, int) {
	if err != nil {
		a.logger.Error("pipeline failed", "error", err)
		var fatal *usecase.FatalError
		if errors.As(err, &fatal) {
			return envelope.Fatal(fatal.Err, fmt.Sprintf("failed while %s", fatal.Stage), fatal.Report), ExitFatal
		}
		return envelope.Fatal(err, "", nil), ExitFatal
	}
	if res.Blocked {
		return envelope.Blocked(res.Report), ExitValidation
	}
	return envelope.OK(res.Report, res.ArtifactPath), ExitOK
}
