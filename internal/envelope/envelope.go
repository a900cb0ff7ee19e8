package envelope

import (
	"encoding/json"
	"io"

	"ReportSync/internal/domain"
)

// Envelope statuses. A fatal envelope has no status at all, which lets
// callers tell crashes apart from validation stops.
const (
	StatusOK              = "ok"
	StatusValidationError = "validation_error"
)

// Envelope is the single JSON object every command prints to stdout.
type Envelope struct {
	Status    string                 `json:"status,omitempty"`
	Report    *domain.AnalysisReport `json:"report,omitempty"`
	OutputRef string                 `json:"outputRef,omitempty"`
	Sheets    []domain.SheetSummary  `json:"sheets,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   string                 `json:"details,omitempty"`
}

// OK wraps a successful run. outputRef stays empty for analyze-only runs.
func OK(report *domain.AnalysisReport, outputRef string) Envelope {
	return Envelope{Status: StatusOK, Report: report, OutputRef: outputRef}
}

// Blocked wraps a run stopped by validation errors; the report still carries
// the full findings and the update preview.
func Blocked(report *domain.AnalysisReport) Envelope {
	return Envelope{Status: StatusValidationError, Report: report}
}

// Fatal wraps an unrecoverable failure. The partial report is attached when
// one was assembled before the crash.
func Fatal(err error, details string, report *domain.AnalysisReport) Envelope {
	return Envelope{Error: err.Error(), Details: details, Report: report}
}

// Sheets wraps a workbook inspection.
func Sheets(sheets []domain.SheetSummary) Envelope {
	return Envelope{Status: StatusOK, Sheets: sheets}
}

// Write renders the envelope as one compact JSON line.
func (e Envelope) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
