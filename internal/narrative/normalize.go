package narrative

import (
	"regexp"
	"strings"
)

var (
	charFold = strings.NewReplacer(
		" ", " ",
		" ", " ",
		" ", " ",
		"–", "-",
		"—", "-",
	)
	spaceRun = regexp.MustCompile(`\s+`)
)

// NormalizeText folds non-breaking spaces and typographic dashes, collapses
// whitespace runs and trims. All reader output goes through it so the rest of
// the pipeline matches against one canonical text form.
func NormalizeText(s string) string {
	s = charFold.Replace(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
