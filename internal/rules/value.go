package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberToken   = regexp.MustCompile(`\d[\d\s\x{00a0}\x{202f},.]*`)
	plainDigits   = regexp.MustCompile(`^\d+$`)
	groupedDigits = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
)

// FirstNumber returns the first count-like token in text, or "" when the text
// holds no digits.
func FirstNumber(text string) string {
	tok := numberToken.FindString(text)
	return strings.TrimRight(tok, " .,  ")
}

// ParseCount converts a narrative count token into an integer. Spaces and
// non-breaking spaces are dropped; dot and comma thousand separators are
// accepted only in proper three-digit grouping, so decimals are rejected
// rather than silently truncated.
func ParseCount(token string) (int64, error) {
	s := strings.Map(dropSpace, strings.TrimSpace(token))
	switch {
	case plainDigits.MatchString(s):
	case groupedDigits.MatchString(s):
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
	default:
		return 0, fmt.Errorf("not a count: %q", token)
	}
	return strconv.ParseInt(s, 10, 64)
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', ' ', ' ', ' ':
		return -1
	}
	return r
}
