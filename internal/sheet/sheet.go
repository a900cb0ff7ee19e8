package sheet

import (
	"fmt"
	"regexp"
	"strings"
)

// Ref addresses one cell by sheet name and 1-based row/column numbers.
type Ref struct {
	Sheet string
	Row   int
	Col   int
}

// Address renders the A1-style cell address without the sheet prefix.
func (r Ref) Address() string {
	return fmt.Sprintf("%s%d", ColumnName(r.Col), r.Row)
}

// ColumnName converts a 1-based column number to its letter form (1 → A,
// 27 → AA).
func ColumnName(n int) string {
	var name string
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

// Label is a row label as found in a sheet's label column.
type Label struct {
	Row  int
	Text string
}

var labelFold = strings.NewReplacer(
	" ", "",
	" ", "",
	" ", "",
	"–", "-",
	"—", "-",
	" ", "",
	"\t", "",
	".", "",
	",", "",
	":", "",
	";", "",
	"\"", "",
	"'", "",
	"№", "",
	"#", "",
)

// NormalizeLabel canonicalizes a row label for matching between narrative
// identifiers and spreadsheet labels: case, spacing, punctuation and the
// article/part abbreviations are all folded.
func NormalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = labelFold.Replace(s)
	s = strings.ReplaceAll(s, "article", "art")
	s = strings.ReplaceAll(s, "part", "pt")
	return s
}

// NormalizeSheetName lowercases a sheet name and collapses its spacing.
func NormalizeSheetName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// LabelMatcher finds rows by exact label, substring or regular expression.
// Exact and substring comparisons run over normalized labels; the pattern
// runs over the raw label text.
type LabelMatcher struct {
	Exact    string
	Contains string
	Pattern  *regexp.Regexp
}

// Matches reports whether a raw sheet label satisfies the matcher.
func (m LabelMatcher) Matches(raw string) bool {
	norm := NormalizeLabel(raw)
	if m.Exact != "" && norm == NormalizeLabel(m.Exact) {
		return true
	}
	if m.Contains != "" && strings.Contains(norm, NormalizeLabel(m.Contains)) {
		return true
	}
	if m.Pattern != nil && m.Pattern.MatchString(raw) {
		return true
	}
	return false
}

// Empty reports whether the matcher has no criteria at all.
func (m LabelMatcher) Empty() bool {
	return m.Exact == "" && m.Contains == "" && m.Pattern == nil
}

// Wanted returns the human-readable label the matcher is looking for, used
// when a missing row has to be appended or suggested.
func (m LabelMatcher) Wanted() string {
	if m.Exact != "" {
		return m.Exact
	}
	if m.Contains != "" {
		return m.Contains
	}
	if m.Pattern != nil {
		return m.Pattern.String()
	}
	return ""
}
