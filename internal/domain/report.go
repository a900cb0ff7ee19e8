package domain

import (
	"fmt"
	"time"
)

// UnknownMonthLabel marks reports whose narrative never stated a period.
const UnknownMonthLabel = "unknown"

// ReportMonth is the accounting period stated in the narrative header.
type ReportMonth struct {
	Year  int
	Month time.Month
}

// Label renders the canonical YYYY-MM form used in reports and artifact names.
func (m ReportMonth) Label() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Severity splits issues into generation blockers and advisories.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding surfaced to the caller.
type Issue struct {
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	Source       string   `json:"source,omitempty"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
}

// MetricRow is one extracted summary metric with its provenance.
type MetricRow struct {
	Key           string `json:"key"`
	Value         int64  `json:"value"`
	SourceSnippet string `json:"sourceSnippet"`
	SourcePointer string `json:"sourcePointer,omitempty"`
}

// ArticleRow is one row of the per-article breakdown. WomenTotal and
// TotalCases are recomputed from the component fields, never copied from the
// narrative; the stated values feed the cross-checks instead.
type ArticleRow struct {
	Article    string `json:"article"`
	WomenU18   int64  `json:"women_u18"`
	WomenGE18  int64  `json:"women_ge18"`
	WomenTotal int64  `json:"women_total"`
	Stopped    int64  `json:"stopped"`
	New        int64  `json:"new"`
	TotalCases int64  `json:"total_cases"`
}

// CrossCheck records one arithmetic consistency verdict. Expected is the
// value computed from component metrics, Actual the value the narrative
// states; Pass means exact equality.
type CrossCheck struct {
	Key      string `json:"key"`
	Formula  string `json:"formula"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Pass     bool   `json:"pass"`
}

// UpdateKind classifies how a planned cell write relates to the prior value.
type UpdateKind string

const (
	UpdateNew       UpdateKind = "new"
	UpdateChanged   UpdateKind = "changed"
	UpdateUnchanged UpdateKind = "unchanged"
	UpdateConflict  UpdateKind = "conflict"
)

// UpdatePreview is one planned cell write. OldValue is nil when the target
// cell is empty or the row does not exist yet.
type UpdatePreview struct {
	Sheet    string     `json:"sheet"`
	Cell     string     `json:"cell"`
	RowLabel string     `json:"rowLabel"`
	OldValue *string    `json:"oldValue"`
	NewValue int64      `json:"newValue"`
	Kind     UpdateKind `json:"kind"`
}

// SheetSummary describes one sheet of an inspected workbook. Labels are the
// non-empty cells of the first column, the ones row matching runs against.
type SheetSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns int      `json:"columns"`
	Labels  []string `json:"labels,omitempty"`
}

// AnalysisReport aggregates everything one reconciliation run learned. It is
// assembled once per run and never mutated afterwards.
type AnalysisReport struct {
	ReportMonth       string          `json:"reportMonth"`
	ExtractedMetrics  []MetricRow     `json:"extractedMetrics"`
	ArticleBreakdown  []ArticleRow    `json:"articleBreakdown"`
	CrossChecks       []CrossCheck    `json:"crossChecks"`
	Errors            []Issue         `json:"errors"`
	Warnings          []Issue         `json:"warnings"`
	UpdatePreview     []UpdatePreview `json:"updatePreview"`
	UnmappedMetrics   []string        `json:"unmappedMetrics"`
	ValidationSkipped bool            `json:"validationSkipped,omitempty"`
}
