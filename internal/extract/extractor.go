package extract

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"ReportSync/internal/config"
	"ReportSync/internal/domain"
	"ReportSync/internal/narrative"
	"ReportSync/internal/rules"
)

// Breakdown field names shared by config bindings, cross-checks and the
// planner.
const (
	FieldWomenU18   = "women_u18"
	FieldWomenGE18  = "women_ge18"
	FieldWomenTotal = "women_total"
	FieldStopped    = "stopped"
	FieldNew        = "new"
	FieldTotalCases = "total_cases"
)

// Fields lists the breakdown columns in their canonical order.
func Fields() []string {
	return []string{FieldWomenU18, FieldWomenGE18, FieldWomenTotal, FieldStopped, FieldNew, FieldTotalCases}
}

// FieldValue reads one breakdown column from a recomputed article row.
func FieldValue(row domain.ArticleRow, field string) int64 {
	switch field {
	case FieldWomenU18:
		return row.WomenU18
	case FieldWomenGE18:
		return row.WomenGE18
	case FieldWomenTotal:
		return row.WomenTotal
	case FieldStopped:
		return row.Stopped
	case FieldNew:
		return row.New
	case FieldTotalCases:
		return row.TotalCases
	}
	return 0
}

// AnomalyKind enumerates extraction problems for the validator.
type AnomalyKind int

const (
	AnomalyMissing AnomalyKind = iota
	AnomalyAmbiguous
	AnomalyBadNumber
	AnomalyNoMonth
	AnomalyNoArticleTable
	AnomalyExtraArticleTable
	AnomalyDuplicateArticle
)

// Anomaly is one extraction problem; the validator turns it into an issue.
type Anomaly struct {
	Kind     AnomalyKind
	Key      string
	Required bool
	Literal  string
	Source   string
	Count    int
}

// ArticleFacts couples a recomputed breakdown row with the totals the
// narrative stated for it.
type ArticleFacts struct {
	Row              domain.ArticleRow
	StatedWomenTotal *int64
	StatedTotalCases *int64
	Source           string
}

// TotalsFacts is the stated aggregate row of the breakdown table, keyed by
// field name.
type TotalsFacts struct {
	Values map[string]int64
	Source string
}

// Result carries everything extraction learned from one narrative.
type Result struct {
	Month       *domain.ReportMonth
	MonthSource string
	Metrics     []domain.MetricRow
	Articles    []ArticleFacts
	Totals      *TotalsFacts
	Anomalies   []Anomaly
}

// Values returns the extracted metrics keyed for cross-check evaluation.
func (r Result) Values() map[string]int64 {
	values := make(map[string]int64, len(r.Metrics))
	for _, m := range r.Metrics {
		values[m.Key] = m.Value
	}
	return values
}

// ArticleRows projects the breakdown for the report, in identifier order.
func (r Result) ArticleRows() []domain.ArticleRow {
	rows := make([]domain.ArticleRow, 0, len(r.Articles))
	for _, fact := range r.Articles {
		rows = append(rows, fact.Row)
	}
	return rows
}

// SumField totals one breakdown column over the recomputed article rows.
func (r Result) SumField(field string) int64 {
	var sum int64
	for _, fact := range r.Articles {
		sum += FieldValue(fact.Row, field)
	}
	return sum
}

// Extractor walks the narrative with the rule registry and the breakdown
// table shape rules.
type Extractor struct {
	registry *rules.Registry
	articles config.ArticleRules
	logger   *slog.Logger
}

// NewExtractor wires the registry and the article table configuration.
func NewExtractor(registry *rules.Registry, articles config.ArticleRules, log *slog.Logger) *Extractor {
	return &Extractor{registry: registry, articles: articles, logger: log}
}

// Extract runs every rule and the breakdown table walk over the document.
// The result ordering is deterministic: metrics follow registry order and
// article rows are sorted by identifier.
func (e *Extractor) Extract(doc narrative.Document) Result {
	var res Result

	if month, source, ok := DetectMonth(doc); ok {
		res.Month = &month
		res.MonthSource = source
	} else {
		res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyNoMonth})
	}

	if e.registry != nil {
		for _, rule := range e.registry.Rules() {
			e.applyRule(&res, rule, doc)
		}
	}

	e.extractBreakdown(&res, doc)

	e.debug("extraction done",
		"metrics", len(res.Metrics),
		"articles", len(res.Articles),
		"anomalies", len(res.Anomalies))
	return res
}

func (e *Extractor) applyRule(res *Result, rule rules.Rule, doc narrative.Document) {
	outcome := rule.Apply(doc)

	for _, bad := range outcome.BadNumbers {
		res.Anomalies = append(res.Anomalies, Anomaly{
			Kind:    AnomalyBadNumber,
			Key:     rule.Key,
			Literal: bad.Literal,
			Source:  bad.Source,
		})
	}

	switch outcome.Kind {
	case rules.KindNotFound:
		res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyMissing, Key: rule.Key, Required: rule.Required})
	case rules.KindAmbiguous:
		res.Metrics = append(res.Metrics, outcome.Row)
		res.Anomalies = append(res.Anomalies, Anomaly{
			Kind:   AnomalyAmbiguous,
			Key:    rule.Key,
			Source: outcome.Row.SourcePointer,
			Count:  len(outcome.Candidates),
		})
	case rules.KindFound:
		res.Metrics = append(res.Metrics, outcome.Row)
	}
}

func (e *Extractor) extractBreakdown(res *Result, doc narrative.Document) {
	if len(e.articles.HeaderHints) == 0 {
		return
	}

	var candidates []narrative.Table
	for _, table := range doc.Tables {
		if e.headerRowIndex(table) > 0 {
			candidates = append(candidates, table)
		}
	}

	if len(candidates) == 0 {
		res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyNoArticleTable})
		return
	}
	if len(candidates) > 1 {
		res.Anomalies = append(res.Anomalies, Anomaly{
			Kind:   AnomalyExtraArticleTable,
			Source: fmt.Sprintf("table %d", candidates[0].Index),
			Count:  len(candidates),
		})
	}

	e.parseBreakdown(res, candidates[0])
}

// headerRowIndex returns the 1-based row holding a header hint, or 0.
func (e *Extractor) headerRowIndex(table narrative.Table) int {
	for _, row := range table.Rows {
		for _, cell := range row.Cells {
			lower := strings.ToLower(cell)
			for _, hint := range e.articles.HeaderHints {
				if strings.Contains(lower, strings.ToLower(hint)) {
					return row.Index
				}
			}
		}
	}
	return 0
}

type boundColumn struct {
	field string
	col   int
}

func (e *Extractor) parseBreakdown(res *Result, table narrative.Table) {
	headerIdx := e.headerRowIndex(table)
	var header narrative.Row
	for _, row := range table.Rows {
		if row.Index == headerIdx {
			header = row
			break
		}
	}

	labelCol := e.articles.LabelColumn
	if labelCol <= 0 {
		labelCol = 1
	}

	bound := bindColumns(e.articles.Columns, header)

	index := map[string]int{}
	for _, row := range table.Rows {
		if row.Index <= headerIdx {
			continue
		}
		label := cellAt(row.Cells, labelCol)
		source := fmt.Sprintf("table %d row %d", table.Index, row.Index)

		if article, ok := NormalizeArticle(label); ok {
			fact := e.readArticleRow(res, row, bound, article, source)
			if prev, dup := index[article]; dup {
				res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyDuplicateArticle, Key: article, Source: source})
				res.Articles[prev] = fact
				continue
			}
			index[article] = len(res.Articles)
			res.Articles = append(res.Articles, fact)
			continue
		}

		if res.Totals == nil && e.isTotalsLabel(label) {
			res.Totals = e.readTotalsRow(res, row, bound, source)
		}
	}

	sort.Slice(res.Articles, func(i, j int) bool {
		return res.Articles[i].Row.Article < res.Articles[j].Row.Article
	})
}

func bindColumns(cfg config.ArticleColumnRules, header narrative.Row) []boundColumn {
	specs := []struct {
		field string
		rule  config.ColumnRule
	}{
		{FieldWomenU18, cfg.WomenU18},
		{FieldWomenGE18, cfg.WomenGE18},
		{FieldWomenTotal, cfg.WomenTotal},
		{FieldStopped, cfg.Stopped},
		{FieldNew, cfg.New},
		{FieldTotalCases, cfg.TotalCases},
	}

	var bound []boundColumn
	for _, spec := range specs {
		if spec.rule.Unset() {
			continue
		}
		if col := resolveColumn(spec.rule, header); col > 0 {
			bound = append(bound, boundColumn{field: spec.field, col: col})
		}
	}
	return bound
}

func resolveColumn(rule config.ColumnRule, header narrative.Row) int {
	for i, cell := range header.Cells {
		folded := foldHeader(cell)
		for _, alias := range rule.Headers {
			if folded != "" && strings.Contains(folded, foldHeader(alias)) {
				return i + 1
			}
		}
	}
	return rule.Index
}

func foldHeader(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

func (e *Extractor) readArticleRow(res *Result, row narrative.Row, bound []boundColumn, article, source string) ArticleFacts {
	fact := ArticleFacts{Source: source}
	fact.Row.Article = article

	for _, bc := range bound {
		value, ok := e.readCount(res, row.Cells, bc.col, article+" "+bc.field, source)
		if !ok {
			continue
		}
		switch bc.field {
		case FieldWomenTotal:
			fact.StatedWomenTotal = &value
		case FieldTotalCases:
			fact.StatedTotalCases = &value
		default:
			setField(&fact.Row, bc.field, value)
		}
	}

	fact.Row.WomenTotal = fact.Row.WomenU18 + fact.Row.WomenGE18
	fact.Row.TotalCases = fact.Row.Stopped + fact.Row.New
	return fact
}

func (e *Extractor) readTotalsRow(res *Result, row narrative.Row, bound []boundColumn, source string) *TotalsFacts {
	totals := &TotalsFacts{Values: map[string]int64{}, Source: source}
	for _, bc := range bound {
		if value, ok := e.readCount(res, row.Cells, bc.col, "totals "+bc.field, source); ok {
			totals.Values[bc.field] = value
		}
	}
	return totals
}

// readCount parses one numeric cell. Empty cells and dash placeholders count
// as absent; a non-numeric token is recorded as an anomaly.
func (e *Extractor) readCount(res *Result, cells []string, col int, key, source string) (int64, bool) {
	raw := strings.TrimSpace(cellAt(cells, col))
	if raw == "" || raw == "-" {
		return 0, false
	}
	value, err := rules.ParseCount(raw)
	if err != nil {
		res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyBadNumber, Key: key, Literal: raw, Source: source})
		return 0, false
	}
	return value, true
}

func (e *Extractor) isTotalsLabel(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return false
	}
	for _, total := range e.articles.TotalLabels {
		if strings.Contains(lower, strings.ToLower(total)) {
			return true
		}
	}
	return false
}

func setField(row *domain.ArticleRow, field string, value int64) {
	switch field {
	case FieldWomenU18:
		row.WomenU18 = value
	case FieldWomenGE18:
		row.WomenGE18 = value
	case FieldStopped:
		row.Stopped = value
	case FieldNew:
		row.New = value
	}
}

func cellAt(cells []string, col int) string {
	if col < 1 || col > len(cells) {
		return ""
	}
	return cells[col-1]
}

func (e *Extractor) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
