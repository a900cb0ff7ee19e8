package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ReportSync/internal/crosscheck"
	"ReportSync/internal/domain"
	"ReportSync/internal/extract"
	"ReportSync/internal/plan"
	"ReportSync/internal/ports"
	"ReportSync/internal/validate"
)

// State tracks where a run is in its lifecycle; transitions are logged at
// debug level.
type State string

const (
	StateExtracting    State = "extracting"
	StateCrossChecking State = "cross_checking"
	StateValidating    State = "validating"
	StateBlocked       State = "blocked"
	StatePlanning      State = "planning"
	StateApplying      State = "applying"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Operation selects whether a run stops at the report or writes the artifact.
type Operation string

const (
	OpAnalyze  Operation = "analyze"
	OpGenerate Operation = "generate"
)

const auditSheet = "ImportLog"

var auditHeader = []string{
	"timestamp", "report_month", "narrative_sha256", "workbook_sha256",
	"status", "metrics", "articles", "updates", "summary",
}

// Request describes one reconciliation run.
type Request struct {
	Operation      Operation
	NarrativePath  string
	WorkbookPath   string
	OutPath        string
	SkipValidation bool
}

// Result couples the assembled report with the run outcome. ArtifactPath is
// empty unless an updated workbook was written.
type Result struct {
	Report       *domain.AnalysisReport
	Blocked      bool
	ArtifactPath string
}

// FatalError marks an unrecoverable failure, keeping the stage it happened in
// and whatever report had been assembled by then.
type FatalError struct {
	Stage  State
	Err    error
	Report *domain.AnalysisReport
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.NarrativeSource
	Extractor *extract.Extractor
	Checks    *crosscheck.Engine
	Validator *validate.Validator
	Planner   *plan.Planner
	Workbooks ports.WorkbookOpener
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Pipeline implements the extract, cross-check, validate, plan and apply
// workflow over one narrative and one prior workbook.
type Pipeline struct {
	source    ports.NarrativeSource
	extractor *extract.Extractor
	checks    *crosscheck.Engine
	validator *validate.Validator
	planner   *plan.Planner
	workbooks ports.WorkbookOpener
	clock     func() time.Time
	logger    *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		source:    deps.Source,
		extractor: deps.Extractor,
		checks:    deps.Checks,
		validator: deps.Validator,
		planner:   deps.Planner,
		workbooks: deps.Workbooks,
		clock:     clock,
		logger:    deps.Logger,
	}
}

// Run executes one operation. Validation errors never produce a Go error:
// they come back as a blocked result with the full report. A FatalError means
// the run could not complete at all.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	var res Result

	if p.source == nil || p.extractor == nil || p.workbooks == nil {
		return res, &FatalError{Stage: StateExtracting, Err: fmt.Errorf("pipeline is not fully wired")}
	}

	p.transition(StateExtracting)
	doc, err := p.source.Load(ctx, req.NarrativePath)
	if err != nil {
		return res, &FatalError{Stage: StateExtracting, Err: err}
	}
	facts := p.extractor.Extract(doc)

	p.transition(StateCrossChecking)
	var checks []domain.CrossCheck
	var problems []crosscheck.Problem
	if p.checks != nil {
		checks, problems = p.checks.Evaluate(facts)
	}

	p.transition(StateValidating)
	var findings validate.Findings
	if p.validator != nil {
		findings = p.validator.Evaluate(facts, checks, problems)
	}

	wb, err := p.workbooks.Open(req.WorkbookPath)
	if err != nil {
		return res, &FatalError{Stage: StatePlanning, Err: err}
	}
	defer func() { _ = wb.Close() }()

	var update plan.Plan
	if p.planner != nil {
		update = p.planner.Build(wb, facts)
	}

	report := assembleReport(facts, checks, findings, update, req.SkipValidation)
	res.Report = report

	res.Blocked = len(findings.Errors) > 0 && !req.SkipValidation
	if res.Blocked {
		p.transition(StateBlocked)
		return res, nil
	}

	if req.Operation == OpGenerate {
		p.transition(StatePlanning)
		artifact := artifactPath(req.OutPath, report.ReportMonth)

		p.transition(StateApplying)
		if err := p.apply(wb, update, report, req, artifact); err != nil {
			p.transition(StateFailed)
			return res, &FatalError{Stage: StateApplying, Err: err, Report: report}
		}
		res.ArtifactPath = artifact
	}

	p.transition(StateDone)
	return res, nil
}

// Inspect summarizes a workbook's sheets and row labels so operators can fix
// their cell mapping configuration.
func (p *Pipeline) Inspect(path string) ([]domain.SheetSummary, error) {
	if p.workbooks == nil {
		return nil, fmt.Errorf("pipeline is not fully wired")
	}

	wb, err := p.workbooks.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()

	sheets := make([]domain.SheetSummary, 0, len(wb.SheetNames()))
	for _, name := range wb.SheetNames() {
		rows, cols := wb.SheetDims(name)
		summary := domain.SheetSummary{Name: name, Rows: rows, Columns: cols}
		if labels, err := wb.RowLabels(name, 1); err == nil {
			for _, label := range labels {
				summary.Labels = append(summary.Labels, label.Text)
			}
		}
		sheets = append(sheets, summary)
	}

	p.debug("workbook inspected", "path", path, "sheets", len(sheets))
	return sheets, nil
}

// apply writes the accepted plan entries, appends the audit row and saves the
// artifact. Conflict and unchanged entries are never written.
func (p *Pipeline) apply(wb ports.Workbook, update plan.Plan, report *domain.AnalysisReport, req Request, artifact string) error {
	for _, row := range update.NewRows {
		if err := wb.SetRowLabel(row.Sheet, row.Row, row.LabelColumn, row.Label); err != nil {
			return fmt.Errorf("append row %d on %s: %w", row.Row, row.Sheet, err)
		}
	}

	written := 0
	for _, entry := range update.Entries {
		if entry.Kind != domain.UpdateNew && entry.Kind != domain.UpdateChanged {
			continue
		}
		if err := wb.SetCell(entry.Sheet, entry.Cell, entry.NewValue); err != nil {
			return fmt.Errorf("write %s!%s: %w", entry.Sheet, entry.Cell, err)
		}
		written++
	}

	if err := p.appendAudit(wb, report, req, written, len(update.Entries)); err != nil {
		return err
	}

	if err := wb.SaveAs(artifact); err != nil {
		return err
	}

	p.debug("artifact written", "path", artifact, "cells", written)
	return nil
}

func (p *Pipeline) appendAudit(wb ports.Workbook, report *domain.AnalysisReport, req Request, written, planned int) error {
	narrativeHash, err := hashFile(req.NarrativePath)
	if err != nil {
		return fmt.Errorf("hash narrative: %w", err)
	}
	workbookHash, err := hashFile(req.WorkbookPath)
	if err != nil {
		return fmt.Errorf("hash workbook: %w", err)
	}

	status := "ok"
	if report.ValidationSkipped {
		status = "validation_skipped"
	}

	row := []string{
		p.clock().UTC().Format(time.RFC3339),
		report.ReportMonth,
		narrativeHash,
		workbookHash,
		status,
		strconv.Itoa(len(report.ExtractedMetrics)),
		strconv.Itoa(len(report.ArticleBreakdown)),
		strconv.Itoa(written),
		fmt.Sprintf("applied %d of %d planned updates", written, planned),
	}
	if err := wb.AppendLogRow(auditSheet, auditHeader, row); err != nil {
		return fmt.Errorf("append audit row: %w", err)
	}
	return nil
}

// assembleReport freezes everything the run learned. Slices are never nil so
// the JSON payload always carries arrays.
func assembleReport(facts extract.Result, checks []domain.CrossCheck, findings validate.Findings, update plan.Plan, skip bool) *domain.AnalysisReport {
	report := &domain.AnalysisReport{
		ReportMonth:       domain.UnknownMonthLabel,
		ExtractedMetrics:  facts.Metrics,
		ArticleBreakdown:  facts.ArticleRows(),
		CrossChecks:       checks,
		Errors:            findings.Errors,
		Warnings:          append(findings.Warnings, update.Warnings...),
		UpdatePreview:     update.Entries,
		UnmappedMetrics:   findings.Unmapped,
		ValidationSkipped: skip && len(findings.Errors) > 0,
	}
	if facts.Month != nil {
		report.ReportMonth = facts.Month.Label()
	}

	if report.ExtractedMetrics == nil {
		report.ExtractedMetrics = []domain.MetricRow{}
	}
	if report.CrossChecks == nil {
		report.CrossChecks = []domain.CrossCheck{}
	}
	if report.Errors == nil {
		report.Errors = []domain.Issue{}
	}
	if report.Warnings == nil {
		report.Warnings = []domain.Issue{}
	}
	if report.UpdatePreview == nil {
		report.UpdatePreview = []domain.UpdatePreview{}
	}
	if report.UnmappedMetrics == nil {
		report.UnmappedMetrics = []string{}
	}
	return report
}

// artifactPath renders the output location: paths ending in .xlsx are used
// verbatim, anything else is treated as a directory and joined with the
// canonical artifact name.
func artifactPath(out, monthLabel string) string {
	if strings.EqualFold(filepath.Ext(out), ".xlsx") {
		return out
	}
	return filepath.Join(out, fmt.Sprintf("report_updated_%s.xlsx", monthLabel))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *Pipeline) transition(s State) {
	p.debug("state change", "state", string(s))
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
