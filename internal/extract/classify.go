package extract

import (
	"regexp"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// Rule maps a pattern to a tag. Several rules may share a tag.
type Rule struct {
	Pattern *regexp.Regexp
	Tag     string
}

func rule(pattern, tag string) Rule {
	return Rule{Pattern: regexp.MustCompile(`(?i)` + pattern), Tag: tag}
}

// DegreeRules classifies the education level a posting targets.
var DegreeRules = []Rule{
	rule(`\b(?:smp|mts|kelas\s+[789])\b`, "SMP"),
	rule(`\b(?:sma|smk|sederajat|kelas\s+1[012])\b`, "SMA"),
	rule(`\b(?:d2|diploma\s+(?:2|ii))\b`, "D2"),
	rule(`\b(?:d3|diploma\s+(?:3|iii))\b`, "D3"),
	rule(`\b(?:d4|diploma\s+(?:4|iv))\b`, "D4"),
	rule(`\b(?:s1|sarjana|undergraduate|bachelor)\b`, "S1"),
	rule(`\b(?:s2|magister|master)\b`, "S2"),
	rule(`\bpascasarjana\b`, "S2"),
	rule(`\b(?:s3|doktoral|doctoral|phd)\b`, "S3"),
	rule(`\bpascasarjana\b`, "S3"),
	rule(`\b(?:non[- ]degree|kursus|pelatihan\s+singkat)\b`, "Non-Degree"),
	rule(`\bgap\s+year\b`, "Gap Year"),
	rule(`\b(?:profesi|guru|dokter|akuntan)\b`, "Profesi"),
}

// FundingRules classifies how a posting is funded.
var FundingRules = []Rule{
	rule(`\b(?:fully|full)\s+funded\b`, "Fully Funded"),
	rule(`\b(?:dibiayai\s+penuh|beasiswa\s+penuh)\b`, "Fully Funded"),
	rule(`\b100\s*%`, "Fully Funded"),
	rule(`\b(?:partially|partial)\s+funded\b`, "Partially Funded"),
	rule(`\b(?:sebagian|potongan\s+biaya|bantuan\s+dana)\b`, "Partially Funded"),
	rule(`\b(?:mentoring|pembinaan|bimbingan)\b`, "Mentoring"),
	rule(`\b(?:riset|penelitian|research)\b`, "Riset"),
	rule(`\b(?:exchange|pertukaran\s+pelajar)\b`, "Exchange"),
	rule(`\b(?:pelatihan|studi\s+singkat|kursus|program\s+singkat|short\s+course)\b`, "Pelatihan/Studi Singkat"),
	rule(`\b(?:self[- ]funded|dana\s+mandiri)\b`, "Self Funded"),
	rule(`\b(?:pendanaan\s+proyek|dana\s+proyek|project\s+funding)\b`, "Pendanaan Project"),
	rule(`\b(?:magang|internship)\b`, "Internship"),
}

var internationalScope = regexp.MustCompile(`(?i)\b(?:luar\s+negeri|international|internasional|overseas|abroad)\b`)

// Classify returns every tag whose rule matches, in rule order without repeats.
// When nothing matches the result is the single fallback tag.
func Classify(text string, rules []Rule, fallback string) []string {
	var tags []string
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.Tag]; dup {
			continue
		}
		if r.Pattern.MatchString(text) {
			seen[r.Tag] = struct{}{}
			tags = append(tags, r.Tag)
		}
	}
	if len(tags) == 0 {
		return []string{fallback}
	}
	return tags
}

// Category reports Internasional when the title or detail mention international scope.
func Category(in Input) string {
	if internationalScope.MatchString(in.Title) || internationalScope.MatchString(in.Detail) {
		return record.CategoryInternational
	}
	return record.CategoryDomestic
}
