package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ReportSync/internal/config"
	"ReportSync/internal/crosscheck"
	"ReportSync/internal/domain"
	"ReportSync/internal/extract"
	"ReportSync/internal/narrative"
	"ReportSync/internal/plan"
	"ReportSync/internal/ports"
	"ReportSync/internal/rules"
	"ReportSync/internal/sheet"
	"ReportSync/internal/validate"
)

type fakeSource struct {
	doc narrative.Document
	err error
}

func (f *fakeSource) Load(ctx context.Context, path string) (narrative.Document, error) {
	if f.err != nil {
		return narrative.Document{}, f.err
	}
	return f.doc, nil
}

type fakeOpener struct {
	wb  *fakeWorkbook
	err error
}

func (f *fakeOpener) Open(path string) (ports.Workbook, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wb, nil
}

type fakeWorkbook struct {
	order  []string
	sheets map[string]map[string]string
	used   map[string]int
	width  map[string]int

	setErr    error
	setCalls  int
	saved     []string
	logSheet  string
	logHeader []string
	logRows   [][]string
}

var _ ports.Workbook = (*fakeWorkbook)(nil)

func newFakeWorkbook() *fakeWorkbook {
	return &fakeWorkbook{
		sheets: map[string]map[string]string{},
		used:   map[string]int{},
		width:  map[string]int{},
	}
}

func (f *fakeWorkbook) addSheet(name string, rows [][]string) {
	f.order = append(f.order, name)
	cells := map[string]string{}
	for r, row := range rows {
		if len(row) > f.width[name] {
			f.width[name] = len(row)
		}
		for c, value := range row {
			if value == "" {
				continue
			}
			cells[sheet.Ref{Row: r + 1, Col: c + 1}.Address()] = value
		}
	}
	f.sheets[name] = cells
	f.used[name] = len(rows)
}

func (f *fakeWorkbook) SheetNames() []string { return f.order }

func (f *fakeWorkbook) ResolveSheet(name string) (string, bool) {
	for _, existing := range f.order {
		if existing == name || sheet.NormalizeSheetName(existing) == sheet.NormalizeSheetName(name) {
			return existing, true
		}
	}
	return "", false
}

func (f *fakeWorkbook) RowLabels(sheetName string, labelCol int) ([]sheet.Label, error) {
	cells, ok := f.sheets[sheetName]
	if !ok {
		return nil, fmt.Errorf("no sheet %s", sheetName)
	}
	var labels []sheet.Label
	for row := 1; row <= f.used[sheetName]; row++ {
		if text := cells[sheet.Ref{Row: row, Col: labelCol}.Address()]; text != "" {
			labels = append(labels, sheet.Label{Row: row, Text: text})
		}
	}
	return labels, nil
}

func (f *fakeWorkbook) HeaderColumn(sheetName string, aliases []string, headerRow int) (int, bool) {
	first, last := headerRow, headerRow
	if headerRow < 1 {
		first, last = 1, 6
	}
	cells := f.sheets[sheetName]
	for row := first; row <= last; row++ {
		for col := 1; col <= 30; col++ {
			text := strings.ReplaceAll(strings.ToLower(cells[sheet.Ref{Row: row, Col: col}.Address()]), " ", "")
			if text == "" {
				continue
			}
			for _, alias := range aliases {
				if strings.Contains(text, strings.ReplaceAll(strings.ToLower(alias), " ", "")) {
					return col, true
				}
			}
		}
	}
	return 0, false
}

func (f *fakeWorkbook) NextRow(sheetName string) int { return f.used[sheetName] + 1 }

func (f *fakeWorkbook) SheetDims(sheetName string) (int, int) {
	return f.used[sheetName], f.width[sheetName]
}

func (f *fakeWorkbook) CellValue(sheetName, cell string) string { return f.sheets[sheetName][cell] }

func (f *fakeWorkbook) SetCell(sheetName, cell string, value int64) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls++
	f.sheets[sheetName][cell] = strconv.FormatInt(value, 10)
	return nil
}

func (f *fakeWorkbook) SetRowLabel(sheetName string, row, col int, label string) error {
	f.sheets[sheetName][sheet.Ref{Row: row, Col: col}.Address()] = label
	if row > f.used[sheetName] {
		f.used[sheetName] = row
	}
	return nil
}

func (f *fakeWorkbook) AppendLogRow(sheetName string, header, row []string) error {
	f.logSheet = sheetName
	f.logHeader = header
	f.logRows = append(f.logRows, row)
	return nil
}

func (f *fakeWorkbook) SaveAs(path string) error {
	f.saved = append(f.saved, path)
	return nil
}

func (f *fakeWorkbook) Close() error { return nil }

func testConfig() config.Config {
	columns := config.ArticleColumnRules{
		WomenU18:   config.ColumnRule{Index: 2},
		WomenGE18:  config.ColumnRule{Index: 3},
		WomenTotal: config.ColumnRule{Index: 4},
		Stopped:    config.ColumnRule{Index: 5},
		New:        config.ColumnRule{Index: 6},
		TotalCases: config.ColumnRule{Index: 7},
	}
	target := func(key, contains, prior string) config.CellTarget {
		return config.CellTarget{
			Key:         key,
			Sheet:       "Summary",
			RowContains: contains,
			LabelColumn: 1,
			Column:      config.ColumnRule{Headers: []string{"count"}, Index: 2},
			Prior:       prior,
		}
	}
	return config.Config{
		Metrics: []config.MetricRule{
			{Key: "carry_over_cases", Required: true, Phrases: []string{"carried over from the previous month"}},
			{Key: "initiated_cases", Required: true, Phrases: []string{"initiated during the month"}},
			{Key: "remaining_cases", Required: true, Phrases: []string{"remaining in proceedings"}},
		},
		Articles: config.ArticleRules{
			HeaderHints: []string{"article"},
			TotalLabels: []string{"total"},
			LabelColumn: 1,
			Columns:     columns,
		},
		Checks: config.CheckRules{
			Formulas: []config.FormulaRule{
				{Key: "remaining_cases", Formula: "carry_over_cases + initiated_cases"},
			},
			Aggregates: []config.AggregateRule{
				{Metric: "initiated_cases", Column: "new"},
			},
		},
		Workbook: config.WorkbookRules{
			Metrics: []config.CellTarget{
				target("carry_over_cases", "carried over", ""),
				target("initiated_cases", "cases initiated", ""),
				target("remaining_cases", "remaining in proceedings", "carry_over_cases"),
			},
			Articles: config.ArticleTarget{
				Sheet:       "By Article",
				LabelColumn: 1,
				HeaderRow:   1,
				Columns:     columns,
			},
		},
	}
}

func goodDocument() narrative.Document {
	return narrative.Document{
		Paragraphs: []narrative.Paragraph{
			{Index: 1, Text: "Operational report for November 2025."},
			{Index: 2, Text: "Carried over from the previous month 7 cases."},
			{Index: 3, Text: "Initiated during the month 5 cases."},
			{Index: 4, Text: "Remaining in proceedings 12 cases."},
		},
		Tables: []narrative.Table{{
			Index: 1,
			Rows: []narrative.Row{
				{Index: 1, Cells: []string{"Article", "Women under 18", "Women 18 and older", "Women total", "Stopped", "New", "Total cases"}},
				{Index: 2, Cells: []string{"art. 154", "1", "2", "3", "0", "5", "5"}},
				{Index: 3, Cells: []string{"Total", "1", "2", "3", "0", "5", "5"}},
			},
		}},
	}
}

func blockedDocument() narrative.Document {
	doc := goodDocument()
	kept := make([]narrative.Paragraph, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		if strings.Contains(p.Text, "Initiated") {
			continue
		}
		kept = append(kept, p)
	}
	doc.Paragraphs = kept
	return doc
}

func priorWorkbook() *fakeWorkbook {
	wb := newFakeWorkbook()
	wb.addSheet("Summary", [][]string{
		{"Metric", "Count"},
		{"Cases carried over", "7"},
		{"Cases initiated", ""},
		{"Remaining in proceedings", "7"},
	})
	wb.addSheet("By Article", [][]string{
		{"Article", "Women under 18", "Women 18 and older", "Women total", "Stopped", "New", "Total cases"},
		{"Article 154", "1", "1", "2", "0", "4", "4"},
	})
	return wb
}

func testPipeline(t *testing.T, src ports.NarrativeSource, opener ports.WorkbookOpener, clock func() time.Time) *Pipeline {
	t.Helper()

	cfg := testConfig()
	registry, err := rules.FromConfig(cfg.Metrics)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	engine, err := crosscheck.NewEngine(cfg.Checks, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	planner, err := plan.NewPlanner(cfg.Workbook, nil)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}

	return NewPipeline(PipelineDeps{
		Source:    src,
		Extractor: extract.NewExtractor(registry, cfg.Articles, nil),
		Checks:    engine,
		Validator: validate.NewValidator(nil),
		Planner:   planner,
		Workbooks: opener,
		Clock:     clock,
	})
}

func tempInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestRunAnalyzeProducesCleanReport(t *testing.T) {
	t.Parallel()

	wb := priorWorkbook()
	p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{wb: wb}, nil)

	res, err := p.Run(context.Background(), Request{
		Operation:     OpAnalyze,
		NarrativePath: "report.docx",
		WorkbookPath:  "prior.xlsx",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.Blocked || res.ArtifactPath != "" {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	report := res.Report
	if report.ReportMonth != "2025-11" {
		t.Fatalf("month = %q, want 2025-11", report.ReportMonth)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("errors = %+v, want none", report.Errors)
	}
	if len(report.ExtractedMetrics) != 3 || len(report.ArticleBreakdown) != 1 {
		t.Fatalf("extraction = %d metrics, %d articles", len(report.ExtractedMetrics), len(report.ArticleBreakdown))
	}
	if len(report.CrossChecks) != 10 {
		t.Fatalf("checks = %d, want 10: %+v", len(report.CrossChecks), report.CrossChecks)
	}
	for _, check := range report.CrossChecks {
		if !check.Pass {
			t.Fatalf("check failed: %+v", check)
		}
	}
	if len(report.UpdatePreview) != 9 {
		t.Fatalf("preview = %d entries, want 9: %+v", len(report.UpdatePreview), report.UpdatePreview)
	}

	if wb.setCalls != 0 || len(wb.saved) != 0 {
		t.Fatalf("analyze touched the workbook: %d writes, %v saves", wb.setCalls, wb.saved)
	}
}

func TestRunGenerateAppliesPlanAndAudits(t *testing.T) {
	t.Parallel()

	wb := priorWorkbook()
	clock := func() time.Time { return time.Date(2025, time.December, 1, 10, 0, 0, 0, time.UTC) }
	p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{wb: wb}, clock)

	req := Request{
		Operation:     OpGenerate,
		NarrativePath: tempInput(t, "report.docx", "narrative bytes"),
		WorkbookPath:  tempInput(t, "prior.xlsx", "workbook bytes"),
		OutPath:       "artifacts",
	}
	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	wantArtifact := filepath.Join("artifacts", "report_updated_2025-11.xlsx")
	if res.Blocked || res.ArtifactPath != wantArtifact {
		t.Fatalf("outcome = %+v, want artifact %s", res, wantArtifact)
	}
	if len(wb.saved) != 1 || wb.saved[0] != wantArtifact {
		t.Fatalf("saved = %v", wb.saved)
	}

	if got := wb.CellValue("Summary", "B3"); got != "5" {
		t.Fatalf("new cell = %q, want 5", got)
	}
	if got := wb.CellValue("Summary", "B4"); got != "12" {
		t.Fatalf("changed cell = %q, want 12", got)
	}
	if got := wb.CellValue("Summary", "B2"); got != "7" {
		t.Fatalf("unchanged cell rewritten: %q", got)
	}
	if wb.setCalls != 6 {
		t.Fatalf("writes = %d, want 6", wb.setCalls)
	}

	if wb.logSheet != "ImportLog" || len(wb.logRows) != 1 {
		t.Fatalf("audit = %q %v", wb.logSheet, wb.logRows)
	}
	row := wb.logRows[0]
	if len(row) != len(auditHeader) {
		t.Fatalf("audit row = %v", row)
	}
	if row[0] != "2025-12-01T10:00:00Z" || row[1] != "2025-11" || row[4] != "ok" {
		t.Fatalf("audit fields = %v", row)
	}
	if len(row[2]) != 64 || len(row[3]) != 64 {
		t.Fatalf("audit hashes = %q, %q", row[2], row[3])
	}
	if row[7] != "6" || row[8] != "applied 6 of 9 planned updates" {
		t.Fatalf("audit counts = %v", row)
	}
}

func TestRunGenerateConvergesAfterApply(t *testing.T) {
	t.Parallel()

	wb := priorWorkbook()
	p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{wb: wb}, nil)

	req := Request{
		Operation:     OpGenerate,
		NarrativePath: tempInput(t, "report.docx", "narrative bytes"),
		WorkbookPath:  tempInput(t, "prior.xlsx", "workbook bytes"),
		OutPath:       "artifacts",
	}
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	res, err := p.Run(context.Background(), Request{
		Operation:     OpAnalyze,
		NarrativePath: req.NarrativePath,
		WorkbookPath:  req.WorkbookPath,
	})
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	for _, entry := range res.Report.UpdatePreview {
		if entry.Kind != domain.UpdateUnchanged {
			t.Fatalf("entry not converged: %+v", entry)
		}
	}
}

func TestRunGenerateBlockedWritesNothing(t *testing.T) {
	t.Parallel()

	wb := priorWorkbook()
	p := testPipeline(t, &fakeSource{doc: blockedDocument()}, &fakeOpener{wb: wb}, nil)

	res, err := p.Run(context.Background(), Request{
		Operation:     OpGenerate,
		NarrativePath: "report.docx",
		WorkbookPath:  "prior.xlsx",
		OutPath:       "artifacts",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if !res.Blocked || res.ArtifactPath != "" {
		t.Fatalf("outcome = %+v, want blocked without artifact", res)
	}
	if len(res.Report.Errors) == 0 {
		t.Fatalf("blocked report carries no errors")
	}
	if len(res.Report.UpdatePreview) == 0 {
		t.Fatalf("blocked report lost its preview")
	}
	if res.Report.ValidationSkipped {
		t.Fatalf("validationSkipped set without the override")
	}
	if wb.setCalls != 0 || len(wb.saved) != 0 || len(wb.logRows) != 0 {
		t.Fatalf("blocked run touched the workbook: %d writes, %v saves, %v audit", wb.setCalls, wb.saved, wb.logRows)
	}
}

func TestRunGenerateSkipValidationOverridesGate(t *testing.T) {
	t.Parallel()

	wb := priorWorkbook()
	p := testPipeline(t, &fakeSource{doc: blockedDocument()}, &fakeOpener{wb: wb}, nil)

	res, err := p.Run(context.Background(), Request{
		Operation:      OpGenerate,
		NarrativePath:  tempInput(t, "report.docx", "narrative bytes"),
		WorkbookPath:   tempInput(t, "prior.xlsx", "workbook bytes"),
		OutPath:        "artifacts",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.Blocked || res.ArtifactPath == "" {
		t.Fatalf("outcome = %+v, want an artifact despite errors", res)
	}
	if !res.Report.ValidationSkipped {
		t.Fatalf("report does not note the skipped validation")
	}
	if len(res.Report.Errors) == 0 {
		t.Fatalf("errors must survive the override")
	}
	if len(wb.logRows) != 1 || wb.logRows[0][4] != "validation_skipped" {
		t.Fatalf("audit rows = %v", wb.logRows)
	}
}

func TestRunFatalErrors(t *testing.T) {
	t.Parallel()

	t.Run("bad narrative", func(t *testing.T) {
		t.Parallel()
		p := testPipeline(t, &fakeSource{err: errors.New("corrupt archive")}, &fakeOpener{wb: priorWorkbook()}, nil)
		_, err := p.Run(context.Background(), Request{Operation: OpAnalyze})
		var fatal *FatalError
		if !errors.As(err, &fatal) || fatal.Stage != StateExtracting || fatal.Report != nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing workbook", func(t *testing.T) {
		t.Parallel()
		p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{err: errors.New("no such file")}, nil)
		_, err := p.Run(context.Background(), Request{Operation: OpAnalyze})
		var fatal *FatalError
		if !errors.As(err, &fatal) || fatal.Stage != StatePlanning || fatal.Report != nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("apply failure keeps report", func(t *testing.T) {
		t.Parallel()
		wb := priorWorkbook()
		wb.setErr = errors.New("disk full")
		p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{wb: wb}, nil)
		_, err := p.Run(context.Background(), Request{
			Operation:     OpGenerate,
			NarrativePath: tempInput(t, "report.docx", "x"),
			WorkbookPath:  tempInput(t, "prior.xlsx", "y"),
		})
		var fatal *FatalError
		if !errors.As(err, &fatal) || fatal.Stage != StateApplying || fatal.Report == nil {
			t.Fatalf("err = %v", err)
		}
		if len(wb.saved) != 0 {
			t.Fatalf("failed apply still saved: %v", wb.saved)
		}
	})
}

func TestRunReportsAreDeterministic(t *testing.T) {
	t.Parallel()

	run := func() *domain.AnalysisReport {
		p := testPipeline(t, &fakeSource{doc: goodDocument()}, &fakeOpener{wb: priorWorkbook()}, nil)
		res, err := p.Run(context.Background(), Request{Operation: OpAnalyze})
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		return res.Report
	}

	first := run()
	second := run()
	if d := cmp.Diff(first, second); d != "" {
		t.Fatalf("reports differ (-first +second):\n%s", d)
	}
}

func TestInspectSummarizesSheets(t *testing.T) {
	t.Parallel()

	p := testPipeline(t, &fakeSource{}, &fakeOpener{wb: priorWorkbook()}, nil)
	sheets, err := p.Inspect("prior.xlsx")
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}

	if len(sheets) != 2 || sheets[0].Name != "Summary" || sheets[1].Name != "By Article" {
		t.Fatalf("sheets = %+v", sheets)
	}
	if sheets[0].Rows != 4 || sheets[0].Columns != 2 {
		t.Fatalf("summary dims = %+v", sheets[0])
	}
	if len(sheets[0].Labels) != 4 || sheets[0].Labels[1] != "Cases carried over" {
		t.Fatalf("summary labels = %v", sheets[0].Labels)
	}
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		out   string
		month string
		want  string
	}{
		{"out/custom.xlsx", "2025-11", "out/custom.xlsx"},
		{"out/Custom.XLSX", "2025-11", "out/Custom.XLSX"},
		{"artifacts", "2025-11", filepath.Join("artifacts", "report_updated_2025-11.xlsx")},
		{"", "unknown", "report_updated_unknown.xlsx"},
	}
	for _, tc := range cases {
		if got := artifactPath(tc.out, tc.month); got != tc.want {
			t.Fatalf("artifactPath(%q, %q) = %q, want %q", tc.out, tc.month, got, tc.want)
		}
	}
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	path := tempInput(t, "input.bin", "hello world")
	got, err := hashFile(path)
	if err != nil {
		t.Fatalf("hashFile error: %v", err)
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("hash = %s, want %s", got, want)
	}

	if _, err := hashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}
