package plan

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"ReportSync/internal/config"
	"ReportSync/internal/domain"
	"ReportSync/internal/extract"
	"ReportSync/internal/ports"
	"ReportSync/internal/rules"
	"ReportSync/internal/sheet"
)

// NewRow is a row the apply step must append before writing its cells.
type NewRow struct {
	Sheet       string
	Row         int
	LabelColumn int
	Label       string
}

// Plan is the complete set of cell updates for one run. Building it never
// touches the workbook.
type Plan struct {
	Entries  []domain.UpdatePreview
	NewRows  []NewRow
	Warnings []domain.Issue
}

// Planner maps extracted values onto workbook cells. Entry order is
// deterministic: summary metrics in configuration order, then article rows in
// identifier order, each walking its columns left to right.
type Planner struct {
	cfg      config.WorkbookRules
	patterns map[string]*regexp.Regexp
	logger   *slog.Logger
}

// NewPlanner compiles the configured row patterns up front.
func NewPlanner(cfg config.WorkbookRules, log *slog.Logger) (*Planner, error) {
	patterns := make(map[string]*regexp.Regexp)
	for _, target := range cfg.Metrics {
		if target.RowRegex == "" {
			continue
		}
		rx, err := regexp.Compile(target.RowRegex)
		if err != nil {
			return nil, fmt.Errorf("row pattern for %s: %w", target.Key, err)
		}
		patterns[target.Key] = rx
	}
	return &Planner{cfg: cfg, patterns: patterns, logger: log}, nil
}

// Build computes the update plan for one extraction result.
func (p *Planner) Build(wb ports.Workbook, res extract.Result) Plan {
	b := &builder{wb: wb, seen: map[string]int{}, nextRow: map[string]int{}}

	values := res.Values()
	for _, target := range p.cfg.Metrics {
		value, ok := values[target.Key]
		if !ok {
			continue
		}
		p.planMetric(b, target, value, values)
	}

	p.planArticles(b, res)

	if len(b.plan.Entries) == 0 {
		b.warnf("no updates could be planned; the workbook layout may not match the configuration")
	}

	p.debug("plan ready",
		"entries", len(b.plan.Entries),
		"newRows", len(b.plan.NewRows),
		"warnings", len(b.plan.Warnings))
	return b.plan
}

func (p *Planner) planMetric(b *builder, target config.CellTarget, value int64, values map[string]int64) {
	sheetName, ok := b.wb.ResolveSheet(target.Sheet)
	if !ok {
		b.warnf("sheet %q for metric %s was not found in the workbook", target.Sheet, target.Key)
		return
	}

	labelCol := target.LabelColumn
	if labelCol <= 0 {
		labelCol = 1
	}
	labels, err := b.wb.RowLabels(sheetName, labelCol)
	if err != nil {
		b.warnf("cannot read row labels of %q: %v", sheetName, err)
		return
	}

	col := p.metricColumn(b, sheetName, target)
	if col <= 0 {
		b.warnf("value column for metric %s was not found on %q", target.Key, sheetName)
		return
	}

	var expect *int64
	if target.Prior != "" {
		if prior, ok := values[target.Prior]; ok {
			expect = &prior
		}
	}

	matcher := sheet.LabelMatcher{Exact: target.RowLabel, Contains: target.RowContains, Pattern: p.patterns[target.Key]}
	rows := matchRows(matcher, labels)

	switch len(rows) {
	case 0:
		row := b.allocRow(sheetName)
		label := rowLabelFor(target)
		b.plan.NewRows = append(b.plan.NewRows, NewRow{Sheet: sheetName, Row: row, LabelColumn: labelCol, Label: label})
		b.add(sheetName, row, col, label, "", true, value, nil)
		b.suggest(fmt.Sprintf("no row on %q matches metric %s; appending row %d", sheetName, target.Key, row),
			matcher.Wanted(), labels)
	case 1:
		addr := sheet.Ref{Row: rows[0].Row, Col: col}.Address()
		b.add(sheetName, rows[0].Row, col, rows[0].Text, b.wb.CellValue(sheetName, addr), false, value, expect)
	default:
		b.warnf("%d rows on %q match metric %s; skipping the update", len(rows), sheetName, target.Key)
	}
}

func (p *Planner) planArticles(b *builder, res extract.Result) {
	target := p.cfg.Articles
	if target.Sheet == "" || len(res.Articles) == 0 {
		return
	}

	sheetName, ok := b.wb.ResolveSheet(target.Sheet)
	if !ok {
		b.warnf("breakdown sheet %q was not found in the workbook", target.Sheet)
		return
	}

	labelCol := target.LabelColumn
	if labelCol <= 0 {
		labelCol = 1
	}
	labels, err := b.wb.RowLabels(sheetName, labelCol)
	if err != nil {
		b.warnf("cannot read row labels of %q: %v", sheetName, err)
		return
	}

	index := map[string]sheet.Label{}
	for _, label := range labels {
		norm := sheet.NormalizeLabel(label.Text)
		if norm == "" {
			continue
		}
		if first, dup := index[norm]; dup {
			b.warnf("duplicate row label %q on %q; using row %d", label.Text, sheetName, first.Row)
			continue
		}
		index[norm] = label
	}

	columns := p.articleColumns(b, sheetName, target)
	if len(columns) == 0 {
		b.warnf("no breakdown columns could be located on %q", sheetName)
		return
	}

	for _, fact := range res.Articles {
		article := fact.Row.Article
		if label, found := index[sheet.NormalizeLabel(article)]; found {
			for _, bc := range columns {
				addr := sheet.Ref{Row: label.Row, Col: bc.col}.Address()
				b.add(sheetName, label.Row, bc.col, label.Text,
					b.wb.CellValue(sheetName, addr), false, extract.FieldValue(fact.Row, bc.field), nil)
			}
			continue
		}

		row := b.allocRow(sheetName)
		b.plan.NewRows = append(b.plan.NewRows, NewRow{Sheet: sheetName, Row: row, LabelColumn: labelCol, Label: article})
		for _, bc := range columns {
			b.add(sheetName, row, bc.col, article, "", true, extract.FieldValue(fact.Row, bc.field), nil)
		}
	}
}

func (p *Planner) metricColumn(b *builder, sheetName string, target config.CellTarget) int {
	if len(target.Column.Headers) > 0 {
		if col, ok := b.wb.HeaderColumn(sheetName, target.Column.Headers, target.HeaderRow); ok {
			return col
		}
	}
	return target.Column.Index
}

type boundColumn struct {
	field string
	col   int
}

func (p *Planner) articleColumns(b *builder, sheetName string, target config.ArticleTarget) []boundColumn {
	specs := []struct {
		field string
		rule  config.ColumnRule
	}{
		{extract.FieldWomenU18, target.Columns.WomenU18},
		{extract.FieldWomenGE18, target.Columns.WomenGE18},
		{extract.FieldWomenTotal, target.Columns.WomenTotal},
		{extract.FieldStopped, target.Columns.Stopped},
		{extract.FieldNew, target.Columns.New},
		{extract.FieldTotalCases, target.Columns.TotalCases},
	}

	var bound []boundColumn
	for _, spec := range specs {
		if spec.rule.Unset() {
			continue
		}
		col := 0
		if len(spec.rule.Headers) > 0 {
			if c, ok := b.wb.HeaderColumn(sheetName, spec.rule.Headers, target.HeaderRow); ok {
				col = c
			}
		}
		if col == 0 {
			col = spec.rule.Index
		}
		if col > 0 {
			bound = append(bound, boundColumn{field: spec.field, col: col})
			continue
		}
		b.warnf("column for %s was not found on %q", spec.field, sheetName)
	}
	return bound
}

func (p *Planner) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

// builder accumulates the plan plus the bookkeeping for double writes and
// appended rows.
type builder struct {
	wb      ports.Workbook
	plan    Plan
	seen    map[string]int
	nextRow map[string]int
}

func (b *builder) add(sheetName string, row, col int, rowLabel, old string, newRow bool, value int64, expect *int64) {
	addr := sheet.Ref{Row: row, Col: col}.Address()
	key := sheetName + "!" + addr

	if prev, dup := b.seen[key]; dup {
		if b.plan.Entries[prev].NewValue == value {
			return
		}
		b.warnf("cell %s on %q is targeted twice with different values (%d and %d)",
			addr, sheetName, b.plan.Entries[prev].NewValue, value)
		b.append(sheetName, addr, rowLabel, old, value, domain.UpdateConflict)
		return
	}

	kind := classify(old, newRow, value, expect)
	if kind == domain.UpdateConflict {
		b.warnf("row %q on %q holds %q instead of the expected prior value %d; flagged as a conflict",
			rowLabel, sheetName, strings.TrimSpace(old), *expect)
	}
	b.seen[key] = len(b.plan.Entries)
	b.append(sheetName, addr, rowLabel, old, value, kind)
}

func (b *builder) append(sheetName, addr, rowLabel, old string, value int64, kind domain.UpdateKind) {
	entry := domain.UpdatePreview{Sheet: sheetName, Cell: addr, RowLabel: rowLabel, NewValue: value, Kind: kind}
	if trimmed := strings.TrimSpace(old); trimmed != "" {
		entry.OldValue = &trimmed
	}
	b.plan.Entries = append(b.plan.Entries, entry)
}

func (b *builder) allocRow(sheetName string) int {
	row, ok := b.nextRow[sheetName]
	if !ok {
		row = b.wb.NextRow(sheetName)
	}
	b.nextRow[sheetName] = row + 1
	return row
}

func (b *builder) warnf(format string, args ...interface{}) {
	b.plan.Warnings = append(b.plan.Warnings, domain.Issue{
		Severity: domain.SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (b *builder) suggest(msg, wanted string, labels []sheet.Label) {
	issue := domain.Issue{Severity: domain.SeverityWarning, Message: msg}
	if close := closeLabels(wanted, labels); len(close) > 0 {
		issue.SuggestedFix = "Closest existing labels: " + strings.Join(close, "; ")
	}
	b.plan.Warnings = append(b.plan.Warnings, issue)
}

// classify decides how one planned write relates to the cell's current
// content. A prior-linked cell is expected to still hold expect from the
// previous month; anything else there is a conflict.
func classify(old string, newRow bool, value int64, expect *int64) domain.UpdateKind {
	trimmed := strings.TrimSpace(old)
	if newRow || trimmed == "" {
		return domain.UpdateNew
	}
	prev, err := rules.ParseCount(trimmed)
	if err == nil && prev == value {
		return domain.UpdateUnchanged
	}
	if expect != nil && (err != nil || prev != *expect) {
		return domain.UpdateConflict
	}
	return domain.UpdateChanged
}

func matchRows(m sheet.LabelMatcher, labels []sheet.Label) []sheet.Label {
	if m.Empty() {
		return nil
	}
	var out []sheet.Label
	for _, label := range labels {
		if m.Matches(label.Text) {
			out = append(out, label)
		}
	}
	return out
}

func rowLabelFor(target config.CellTarget) string {
	if target.RowLabel != "" {
		return target.RowLabel
	}
	if target.RowContains != "" {
		return target.RowContains
	}
	return target.Key
}

// closeLabels ranks existing labels by edit distance to the wanted label and
// returns the three closest.
func closeLabels(wanted string, labels []sheet.Label) []string {
	if wanted == "" || len(labels) == 0 {
		return nil
	}

	dmp := diffmatchpatch.New()
	type scored struct {
		text string
		dist int
	}
	ranked := make([]scored, 0, len(labels))
	for _, label := range labels {
		diffs := dmp.DiffMain(strings.ToLower(wanted), strings.ToLower(label.Text), false)
		ranked = append(ranked, scored{text: label.Text, dist: dmp.DiffLevenshtein(diffs)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	out := make([]string, 0, 3)
	for _, s := range ranked {
		if len(out) == 3 {
			break
		}
		out = append(out, s.text)
	}
	return out
}
