package rules

import (
	"fmt"
	"regexp"
	"strings"

	"ReportSync/internal/config"
	"ReportSync/internal/domain"
	"ReportSync/internal/narrative"
)

// Kind classifies the outcome of applying one rule to a document.
type Kind int

const (
	KindNotFound Kind = iota
	KindFound
	KindAmbiguous
)

// BadNumber records an anchored match whose value token failed to parse.
type BadNumber struct {
	Literal string
	Source  string
}

// Result is the outcome of Rule.Apply. For ambiguous rules Row holds the
// latest occurrence; Candidates lists every occurrence in document order.
type Result struct {
	Kind       Kind
	Row        domain.MetricRow
	Candidates []domain.MetricRow
	BadNumbers []BadNumber
}

// Rule locates a single summary metric in the narrative.
type Rule struct {
	Key        string
	Required   bool
	AllowTable bool
	phrases    []string
	patterns   []*regexp.Regexp
}

// New builds a rule from config, compiling its regular expressions.
func New(cfg config.MetricRule) (Rule, error) {
	if cfg.Key == "" {
		return Rule{}, fmt.Errorf("metric rule without a key")
	}
	if len(cfg.Phrases) == 0 && len(cfg.Patterns) == 0 {
		return Rule{}, fmt.Errorf("metric rule %s has neither phrases nor patterns", cfg.Key)
	}

	rule := Rule{Key: cfg.Key, Required: cfg.Required, AllowTable: cfg.AllowTable}
	for _, phrase := range cfg.Phrases {
		rule.phrases = append(rule.phrases, strings.ToLower(narrative.NormalizeText(phrase)))
	}
	for _, pattern := range cfg.Patterns {
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("metric rule %s: pattern %q: %w", cfg.Key, pattern, err)
		}
		if expr.NumSubexp() < 1 {
			return Rule{}, fmt.Errorf("metric rule %s: pattern %q has no capture group", cfg.Key, pattern)
		}
		rule.patterns = append(rule.patterns, expr)
	}
	return rule, nil
}

// Apply scans the document and reports every candidate value for the rule.
// Each paragraph or table row contributes at most one candidate.
func (r Rule) Apply(doc narrative.Document) Result {
	var res Result

	for _, p := range doc.Paragraphs {
		r.applyText(&res, p.Text, fmt.Sprintf("paragraph %d", p.Index))
	}
	if r.AllowTable {
		for _, table := range doc.Tables {
			for _, row := range table.Rows {
				r.applyRow(&res, row, fmt.Sprintf("table %d row %d", table.Index, row.Index))
			}
		}
	}

	switch len(res.Candidates) {
	case 0:
		res.Kind = KindNotFound
	case 1:
		res.Kind = KindFound
		res.Row = res.Candidates[0]
	default:
		res.Kind = KindAmbiguous
		res.Row = res.Candidates[len(res.Candidates)-1]
	}
	return res
}

func (r Rule) applyText(res *Result, text, source string) {
	for _, expr := range r.patterns {
		m := expr.FindStringSubmatch(text)
		if m == nil || m[1] == "" {
			continue
		}
		r.record(res, m[1], text, source)
		return
	}

	lower := strings.ToLower(text)
	for _, phrase := range r.phrases {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		token := FirstNumber(text[idx+len(phrase):])
		if token == "" {
			continue
		}
		r.record(res, token, text, source)
		return
	}
}

func (r Rule) applyRow(res *Result, row narrative.Row, source string) {
	joined := strings.Join(row.Cells, " ")
	for _, expr := range r.patterns {
		m := expr.FindStringSubmatch(joined)
		if m == nil || m[1] == "" {
			continue
		}
		r.record(res, m[1], joined, source)
		return
	}

	for i, cell := range row.Cells {
		lower := strings.ToLower(cell)
		for _, phrase := range r.phrases {
			if !strings.Contains(lower, phrase) {
				continue
			}
			if token := r.rowValue(row.Cells, i, lower, phrase); token != "" {
				r.record(res, token, joined, source)
				return
			}
		}
	}
}

// rowValue looks for the value first in the anchor cell after the phrase,
// then in the following cells of the same row.
func (r Rule) rowValue(cells []string, anchor int, lowerCell, phrase string) string {
	idx := strings.Index(lowerCell, phrase)
	if tok := FirstNumber(cells[anchor][idx+len(phrase):]); tok != "" {
		return tok
	}
	for _, cell := range cells[anchor+1:] {
		if tok := FirstNumber(cell); tok != "" {
			return tok
		}
	}
	return ""
}

func (r Rule) record(res *Result, token, snippet, source string) {
	value, err := ParseCount(token)
	if err != nil {
		res.BadNumbers = append(res.BadNumbers, BadNumber{Literal: token, Source: source})
		return
	}
	res.Candidates = append(res.Candidates, domain.MetricRow{
		Key:           r.Key,
		Value:         value,
		SourceSnippet: snippet,
		SourcePointer: source,
	})
}

// Registry keeps metric rules in declaration order.
type Registry struct {
	rules []Rule
	index map[string]int
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: map[string]int{}}
}

// Register appends a rule, rejecting duplicate keys.
func (r *Registry) Register(rule Rule) error {
	if r.index == nil {
		r.index = map[string]int{}
	}
	if _, ok := r.index[rule.Key]; ok {
		return fmt.Errorf("metric rule %s is already registered", rule.Key)
	}
	r.index[rule.Key] = len(r.rules)
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns all rules in declaration order.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// FromConfig compiles the configured metric rules into a registry.
func FromConfig(cfgs []config.MetricRule) (*Registry, error) {
	registry := NewRegistry()
	for _, cfg := range cfgs {
		rule, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
