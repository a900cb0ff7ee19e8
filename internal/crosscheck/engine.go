package crosscheck

import (
	"fmt"
	"log/slog"

	"ReportSync/internal/config"
	"ReportSync/internal/domain"
	"ReportSync/internal/extract"
)

const derivedSuffix = " (derived)"

// Problem reports a configured check that could not be evaluated because the
// narrative never produced one of its metrics.
type Problem struct {
	Key     string
	Formula string
	Missing []string
}

type formulaCheck struct {
	key  string
	expr *Expr
}

// Engine evaluates every arithmetic consistency check: the fixed per-article
// and aggregate identities, the configured column bindings and the configured
// balance formulas. Every check runs; nothing short-circuits.
type Engine struct {
	formulas   []formulaCheck
	aggregates []config.AggregateRule
	logger     *slog.Logger
}

// NewEngine parses the configured formulas up front so malformed config fails
// the run before any narrative is read.
func NewEngine(cfg config.CheckRules, log *slog.Logger) (*Engine, error) {
	engine := &Engine{aggregates: cfg.Aggregates, logger: log}

	for _, rule := range cfg.Formulas {
		if rule.Key == "" {
			return nil, fmt.Errorf("formula check without a target key")
		}
		expr, err := Parse(rule.Formula)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", rule.Key, err)
		}
		engine.formulas = append(engine.formulas, formulaCheck{key: rule.Key, expr: expr})
	}

	for _, agg := range cfg.Aggregates {
		if !validField(agg.Column) {
			return nil, fmt.Errorf("aggregate check %s: unknown column %q", agg.Metric, agg.Column)
		}
	}

	return engine, nil
}

// Evaluate runs all checks against one extraction result. Expected carries
// the computed value, Actual the narrative's stated value; checks without a
// stated counterpart compare the computation to itself and are marked
// derived.
func (e *Engine) Evaluate(res extract.Result) ([]domain.CrossCheck, []Problem) {
	var checks []domain.CrossCheck
	var problems []Problem

	for _, fact := range res.Articles {
		checks = append(checks, identityCheck(
			fact.Row.Article+"."+extract.FieldWomenTotal,
			"women_total = women_u18 + women_ge18",
			fact.Row.WomenU18+fact.Row.WomenGE18,
			fact.StatedWomenTotal,
		))
	}
	for _, fact := range res.Articles {
		checks = append(checks, identityCheck(
			fact.Row.Article+"."+extract.FieldTotalCases,
			"total_cases = stopped + new",
			fact.Row.Stopped+fact.Row.New,
			fact.StatedTotalCases,
		))
	}

	checks = append(checks, e.totalsChecks(res)...)

	values := res.Values()

	for _, agg := range e.aggregates {
		stated, ok := values[agg.Metric]
		if !ok {
			continue
		}
		expected := res.SumField(agg.Column)
		checks = append(checks, domain.CrossCheck{
			Key:      agg.Metric,
			Formula:  fmt.Sprintf("%s = sum(%s)", agg.Metric, agg.Column),
			Expected: expected,
			Actual:   stated,
			Pass:     expected == stated,
		})
	}

	for _, fc := range e.formulas {
		expected, missing := fc.expr.Eval(values)
		stated, ok := values[fc.key]
		if !ok {
			missing = append([]string{fc.key}, missing...)
		}
		if len(missing) > 0 {
			problems = append(problems, Problem{Key: fc.key, Formula: fc.expr.Text(), Missing: missing})
			continue
		}
		checks = append(checks, domain.CrossCheck{
			Key:      fc.key,
			Formula:  fmt.Sprintf("%s = %s", fc.key, fc.expr.Text()),
			Expected: expected,
			Actual:   stated,
			Pass:     expected == stated,
		})
	}

	e.debug("cross-checks evaluated", "checks", len(checks), "problems", len(problems))
	return checks, problems
}

// totalsChecks compares the stated aggregate row, when the narrative has one,
// against the recomputed column sums.
func (e *Engine) totalsChecks(res extract.Result) []domain.CrossCheck {
	if res.Totals == nil {
		return nil
	}

	var checks []domain.CrossCheck
	for _, field := range extract.Fields() {
		stated, ok := res.Totals.Values[field]
		if !ok {
			continue
		}
		expected := res.SumField(field)
		checks = append(checks, domain.CrossCheck{
			Key:      "total." + field,
			Formula:  fmt.Sprintf("total.%s = sum(%s)", field, field),
			Expected: expected,
			Actual:   stated,
			Pass:     expected == stated,
		})
	}
	return checks
}

func identityCheck(key, formula string, expected int64, stated *int64) domain.CrossCheck {
	actual := expected
	if stated != nil {
		actual = *stated
	} else {
		formula += derivedSuffix
	}
	return domain.CrossCheck{
		Key:      key,
		Formula:  formula,
		Expected: expected,
		Actual:   actual,
		Pass:     expected == actual,
	}
}

func validField(name string) bool {
	for _, field := range extract.Fields() {
		if name == field {
			return true
		}
	}
	return false
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
