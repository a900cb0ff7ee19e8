package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ReportSync/internal/domain"
	"ReportSync/internal/narrative"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	namedMonthExpr = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{4})\b`)
	isoMonthExpr   = regexp.MustCompile(`\b(\d{4})-(\d{2})\b`)
)

// DetectMonth finds the report period in the narrative, scanning paragraphs
// in order. Named forms ("for November 2025") win over the ISO form
// ("2025-11") within the same paragraph.
func DetectMonth(doc narrative.Document) (domain.ReportMonth, string, bool) {
	for _, p := range doc.Paragraphs {
		if m := namedMonthExpr.FindStringSubmatch(p.Text); m != nil {
			month, ok := monthNames[strings.ToLower(m[1])]
			if ok {
				year, _ := strconv.Atoi(m[2])
				return domain.ReportMonth{Year: year, Month: month}, pointer(p), true
			}
		}
		if m := isoMonthExpr.FindStringSubmatch(p.Text); m != nil {
			year, _ := strconv.Atoi(m[1])
			monthNum, _ := strconv.Atoi(m[2])
			if monthNum >= 1 && monthNum <= 12 {
				return domain.ReportMonth{Year: year, Month: time.Month(monthNum)}, pointer(p), true
			}
		}
	}
	return domain.ReportMonth{}, "", false
}

func pointer(p narrative.Paragraph) string {
	return fmt.Sprintf("paragraph %d", p.Index)
}
