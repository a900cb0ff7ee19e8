package validate

import (
	"fmt"
	"log/slog"
	"strings"

	"ReportSync/internal/crosscheck"
	"ReportSync/internal/domain"
	"ReportSync/internal/extract"
)

// Findings is the classified issue set for one run. Errors block generation,
// warnings never do.
type Findings struct {
	Errors   []domain.Issue
	Warnings []domain.Issue
	Unmapped []string
}

// Validator turns extraction anomalies and failed cross-checks into issues
// with stable, human-readable messages.
type Validator struct {
	logger *slog.Logger
}

// NewValidator builds the classification component.
func NewValidator(log *slog.Logger) *Validator {
	return &Validator{logger: log}
}

// Evaluate classifies everything the earlier stages surfaced. Ordering is
// deterministic: anomalies first (in extraction order), then failed checks
// (in evaluation order), then unevaluable checks.
func (v *Validator) Evaluate(res extract.Result, checks []domain.CrossCheck, problems []crosscheck.Problem) Findings {
	var f Findings

	for _, anomaly := range res.Anomalies {
		v.classify(&f, anomaly)
	}

	for _, check := range checks {
		if check.Pass {
			continue
		}
		f.Errors = append(f.Errors, domain.Issue{
			Severity: domain.SeverityError,
			Message: fmt.Sprintf("cross-check %s failed: %s gives %d but the narrative states %d",
				check.Key, check.Formula, check.Expected, check.Actual),
			SuggestedFix: "Correct the narrative so the stated total agrees with its components, or fix the component values.",
		})
	}

	for _, problem := range problems {
		f.Errors = append(f.Errors, domain.Issue{
			Severity: domain.SeverityError,
			Message: fmt.Sprintf("cross-check %s could not be evaluated: metrics %s were not extracted",
				problem.Key, strings.Join(problem.Missing, ", ")),
			SuggestedFix: "Add the missing metrics to the narrative or adjust the extraction rules.",
		})
	}

	v.debug("validation done", "errors", len(f.Errors), "warnings", len(f.Warnings))
	return f
}

func (v *Validator) classify(f *Findings, anomaly extract.Anomaly) {
	switch anomaly.Kind {
	case extract.AnomalyMissing:
		if anomaly.Required {
			f.Unmapped = append(f.Unmapped, anomaly.Key)
			f.Errors = append(f.Errors, domain.Issue{
				Severity:     domain.SeverityError,
				Message:      fmt.Sprintf("required metric %s was not found in the narrative", anomaly.Key),
				SuggestedFix: "Add the phrase the extraction rule expects, or adjust the rule patterns.",
			})
			return
		}
		f.Warnings = append(f.Warnings, domain.Issue{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("metric %s was not found in the narrative", anomaly.Key),
		})
	case extract.AnomalyAmbiguous:
		f.Warnings = append(f.Warnings, domain.Issue{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("metric %s matched %d times; using the latest occurrence", anomaly.Key, anomaly.Count),
			Source:   anomaly.Source,
		})
	case extract.AnomalyBadNumber:
		f.Errors = append(f.Errors, domain.Issue{
			Severity:     domain.SeverityError,
			Message:      fmt.Sprintf("non-numeric value %q where a number was expected for %s", anomaly.Literal, anomaly.Key),
			Source:       anomaly.Source,
			SuggestedFix: "Replace the token with a whole number.",
		})
	case extract.AnomalyNoMonth:
		f.Errors = append(f.Errors, domain.Issue{
			Severity:     domain.SeverityError,
			Message:      "report month could not be determined from the narrative",
			SuggestedFix: "State the period in the opening line, e.g. \"for November 2025\".",
		})
	case extract.AnomalyNoArticleTable:
		f.Errors = append(f.Errors, domain.Issue{
			Severity:     domain.SeverityError,
			Message:      "article breakdown table was not found in the narrative",
			SuggestedFix: "Add the per-article table or adjust the header hints.",
		})
	case extract.AnomalyExtraArticleTable:
		f.Warnings = append(f.Warnings, domain.Issue{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("found %d candidate breakdown tables; using the first one", anomaly.Count),
			Source:   anomaly.Source,
		})
	case extract.AnomalyDuplicateArticle:
		f.Warnings = append(f.Warnings, domain.Issue{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("duplicate breakdown row for %s; using the latest occurrence", anomaly.Key),
			Source:   anomaly.Source,
		})
	}
}

func (v *Validator) debug(msg string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Debug(msg, args...)
	}
}
