package ingest

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source types inferred from report file names.
const (
	SourceUBSHouseView = "ubs_house_view"
	SourceSEC10K       = "sec_10k"
	SourceSEC10Q       = "sec_10q"
	SourceFOMCMinutes  = "fomc_minutes"
	SourceBankOutlook  = "bank_outlook"
	SourceUnknown      = "unknown"
)

// InferSourceType classifies a report by its file name.
func InferSourceType(name string) string {
	lower := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	switch {
	case strings.Contains(lower, "ubs") || strings.Contains(lower, "house_view"):
		return SourceUBSHouseView
	case strings.Contains(lower, "10-k") || strings.Contains(lower, "10k"):
		return SourceSEC10K
	case strings.Contains(lower, "10-q") || strings.Contains(lower, "10q"):
		return SourceSEC10Q
	case strings.Contains(lower, "fomc") || strings.Contains(lower, "minutes"):
		return SourceFOMCMinutes
	case strings.Contains(lower, "outlook"):
		return SourceBankOutlook
	default:
		return SourceUnknown
	}
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	monthYearPattern = regexp.MustCompile(`(?i)(?:^|[^a-z])([a-z]{3,9})[ _.-]?((?:19|20)\d{2})(?:[^0-9]|$)`)
	isoPattern       = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})[-_.]?(0[1-9]|1[0-2])(?:[-_.]?(0[1-9]|[12]\d|3[01]))?(?:[^0-9]|$)`)
	quarterPattern   = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])q([1-4])[ _.-]?((?:19|20)\d{2})|((?:19|20)\d{2})[ _.-]?q([1-4])(?:[^0-9]|$)`)
	yearOnlyPattern  = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
)

// InferPublishedDate extracts a publication date from a file name such as
// "UBS_House_View_March_2025.pdf" or "fomc_minutes_2025-01-29.pdf".
// It returns the zero time when no date is present.
func InferPublishedDate(name string) time.Time {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	if m := isoPattern.FindStringSubmatch(base); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day := 1
		if m[3] != "" {
			day, _ = strconv.Atoi(m[3])
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}

	for _, m := range monthYearPattern.FindAllStringSubmatch(base, -1) {
		if month, ok := months[strings.ToLower(m[1])]; ok {
			year, _ := strconv.Atoi(m[2])
			return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		}
	}

	if m := quarterPattern.FindStringSubmatch(base); m != nil {
		q, year := m[1], m[2]
		if q == "" {
			year, q = m[3], m[4]
		}
		qn, _ := strconv.Atoi(q)
		y, _ := strconv.Atoi(year)
		return time.Date(y, time.Month(3*(qn-1)+1), 1, 0, 0, 0, 0, time.UTC)
	}

	if m := yearOnlyPattern.FindStringSubmatch(base); m != nil {
		y, _ := strconv.Atoi(m[1])
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}
