package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

var locationLabel = regexp.MustCompile(`(?i)\b(?:Lokasi|Tempat|Negara|Kota|Wilayah)\s*:[ \t]*([^\n]*)`)

type keywordRule struct {
	keywords []string
	value    string
}

// Order matters: the first rule with any keyword present wins.
var locationKeywords = []keywordRule{
	{keywords: []string{"online", "daring", "virtual"}, value: "Online"},
	{keywords: []string{"remote", "dari rumah"}, value: "Remote"},
	{keywords: []string{"indonesia", "dalam negeri"}, value: "Indonesia"},
	{keywords: []string{"luar negeri", "internasional"}, value: "Internasional"},
}

// KnownCities are matched case-insensitively after the keyword rules.
var KnownCities = []string{
	"Jakarta", "Bandung", "Surabaya", "Yogyakarta", "Medan", "Makassar", "Semarang", "Denpasar",
}

// NewLocationChain builds the location chain.
func NewLocationChain() Chain[string] {
	return Chain[string]{
		Strategies: []Strategy[string]{LabeledLocation, KeywordLocation, CityLocation},
		Fallback:   record.Unknown,
	}
}

// LabeledLocation reads "Lokasi: ..." style phrases up to the end of the line.
func LabeledLocation(in Input) (string, bool) {
	return labeledValue(locationLabel, in.Text())
}

// KeywordLocation maps scope keywords to a coarse location.
func KeywordLocation(in Input) (string, bool) {
	lower := strings.ToLower(in.Text())
	for _, rule := range locationKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.value, true
			}
		}
	}
	return "", false
}

// CityLocation returns the first known city mentioned in the text.
func CityLocation(in Input) (string, bool) {
	lower := strings.ToLower(in.Text())
	for _, city := range KnownCities {
		if strings.Contains(lower, strings.ToLower(city)) {
			return city, true
		}
	}
	return "", false
}

func labeledValue(re *regexp.Regexp, text string) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}
