package extract

import (
	"regexp"
	"strings"
)

var (
	prefixedArticleExpr = regexp.MustCompile(`(?i)art(?:icle)?\.?\s*(\d{1,3})(?:\s*-\s*(\d{1,3}))?(?:\s*(?:part|pt)\.?\s*(\d{1,2}))?`)
	bareArticleExpr     = regexp.MustCompile(`^(\d{1,3})(?:\s*-\s*(\d{1,3}))?(?:\s*(?:part|pt)\.?\s*(\d{1,2}))?\b`)
)

// NormalizeArticle canonicalizes an article identifier so narrative rows and
// spreadsheet rows agree on one spelling: "Article 154-2 part 3" and
// "154-2 pt. 3" both become "art.154-2 pt.3". The second value is false for
// labels that do not reference an article at all.
func NormalizeArticle(s string) (string, bool) {
	text := strings.TrimSpace(s)
	if text == "" {
		return "", false
	}

	m := prefixedArticleExpr.FindStringSubmatch(text)
	if m == nil {
		m = bareArticleExpr.FindStringSubmatch(text)
	}
	if m == nil {
		return "", false
	}

	id := "art." + m[1]
	if m[2] != "" {
		id += "-" + m[2]
	}
	if m[3] != "" {
		id += " pt." + m[3]
	}
	return id, true
}
