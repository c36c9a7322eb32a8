package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// DefaultDateLabels is the deadline vocabulary used when a source declares none.
var DefaultDateLabels = []string{
	"Deadline",
	"Batas waktu pendaftaran",
	"Pendaftaran hingga",
	"sampai dengan",
}

var monthNames = map[string]time.Month{
	"januari": time.January, "january": time.January, "jan": time.January,
	"februari": time.February, "february": time.February, "feb": time.February, "pebruari": time.February,
	"maret": time.March, "march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"mei": time.May, "may": time.May,
	"juni": time.June, "june": time.June, "jun": time.June,
	"juli": time.July, "july": time.July, "jul": time.July,
	"agustus": time.August, "august": time.August, "agu": time.August, "agt": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"oktober": time.October, "october": time.October, "okt": time.October, "oct": time.October,
	"november": time.November, "nopember": time.November, "nov": time.November,
	"desember": time.December, "december": time.December, "des": time.December, "dec": time.December,
}

const (
	isoPattern   = `\d{4}-\d{2}-\d{2}`
	slashPattern = `\d{1,2}/\d{1,2}/\d{4}`
)

var (
	monthAlternation = buildMonthAlternation()
	dayMonthYear     = regexp.MustCompile(`(?i)^(\d{1,2})\s+(\pL+)\.?\s+(\d{4})$`)
	scanPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:` + monthAlternation + `)\.?\s+\d{4})\b`),
		regexp.MustCompile(`\b(` + isoPattern + `)\b`),
		regexp.MustCompile(`\b(` + slashPattern + `)\b`),
	}
)

// longest names first so that "januari" is preferred over "jan".
func buildMonthAlternation() string {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

// NewDateChain builds the date chain for the given label vocabulary.
func NewDateChain(labels []string) Chain[string] {
	if len(labels) == 0 {
		labels = DefaultDateLabels
	}
	return Chain[string]{
		Strategies: []Strategy[string]{
			LabeledDate(labels),
			TimeMarkerDate,
			ScannedDate,
		},
		Fallback: record.Unknown,
	}
}

// LabeledDate matches "<label>: <date>" phrases.
func LabeledDate(labels []string) Strategy[string] {
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(l), " ", `\s+`))
		}
	}
	if len(quoted) == 0 {
		return func(Input) (string, bool) { return "", false }
	}
	re := regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\s*:\s*(\d{1,2}\s+\pL+\.?\s+\d{4}|` +
		isoPattern + `|` + slashPattern + `)`)
	return func(in Input) (string, bool) {
		for _, m := range re.FindAllStringSubmatch(in.Text(), -1) {
			if d, ok := ParseDate(m[1]); ok {
				return d.Format(record.DateLayout), true
			}
		}
		return "", false
	}
}

// TimeMarkerDate parses the structured time marker, accepting a full timestamp by its date prefix.
func TimeMarkerDate(in Input) (string, bool) {
	v := strings.TrimSpace(in.TimeMarker)
	if len(v) < len(record.DateLayout) {
		return "", false
	}
	d, err := time.Parse(record.DateLayout, v[:len(record.DateLayout)])
	if err != nil {
		return "", false
	}
	return d.Format(record.DateLayout), true
}

// ScannedDate finds the first parseable date-shaped substring anywhere in the text.
func ScannedDate(in Input) (string, bool) {
	text := in.Text()
	for _, re := range scanPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if d, ok := ParseDate(m[1]); ok {
				return d.Format(record.DateLayout), true
			}
		}
	}
	return "", false
}

// ParseDate accepts "12 Januari 2026", "2026-01-12" and "12/01/2026" (day first).
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		return civil(m[3], int(month), m[1])
	}
	if t, err := time.Parse(record.DateLayout, s); err == nil {
		return t, true
	}
	if parts := strings.Split(s, "/"); len(parts) == 3 {
		month, err := strconv.Atoi(parts[1])
		if err != nil {
			return time.Time{}, false
		}
		return civil(parts[2], month, parts[0])
	}
	return time.Time{}, false
}

func civil(yearText string, month int, dayText string) (time.Time, bool) {
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow; reject anything that rolled over.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
