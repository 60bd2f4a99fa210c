package router

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
)

type categoryPattern struct {
	re   *regexp.Regexp
	name string
}

var categoryPatterns = []categoryPattern{
	{regexp.MustCompile(`\bgaming\b`), "Gaming"},
	{regexp.MustCompile(`\bmusic\b`), "Music"},
	{regexp.MustCompile(`\bsports?\b`), "Sports"},
	{regexp.MustCompile(`\beducation(al)?\b`), "Education"},
	{regexp.MustCompile(`\bcomedy\b`), "Comedy"},
	{regexp.MustCompile(`\bentertainment\b`), "Entertainment"},
	{regexp.MustCompile(`\b(news|politics)\b`), "News & Politics"},
	{regexp.MustCompile(`\b(howto|how-to|style)\b`), "Howto & Style"},
	{regexp.MustCompile(`\b(science|technology|tech)\b`), "Science & Technology"},
	{regexp.MustCompile(`\b(film|films|animation)\b`), "Film & Animation"},
	{regexp.MustCompile(`\b(autos|vehicles)\b`), "Autos & Vehicles"},
	{regexp.MustCompile(`\b(pets|animals)\b`), "Pets & Animals"},
	{regexp.MustCompile(`\btravel\b`), "Travel & Events"},
	{regexp.MustCompile(`\b(people (?:&|and) blogs|blogs|vlogs)\b`), "People & Blogs"},
	{regexp.MustCompile(`\b(nonprofits?|activism)\b`), "Nonprofits & Activism"},
}

var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"hindi":      "hi",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"russian":    "ru",
}

var countryCodes = map[string]string{
	"canadian": "CA", "canada": "CA",
	"american": "US", "united states": "US",
	"british": "GB", "uk": "GB", "united kingdom": "GB",
	"indian": "IN", "india": "IN",
	"german": "DE", "germany": "DE",
	"french": "FR", "france": "FR",
	"japanese": "JP", "japan": "JP",
	"korean": "KR", "korea": "KR",
	"mexican": "MX", "mexico": "MX",
	"russian": "RU", "russia": "RU",
	"brazilian": "BR", "brazil": "BR",
}

const numberPattern = `(\d+(?:[.,]\d+)*)\s*(k|m|b|thousand|million|billion)?`

var (
	minMetricRe  = regexp.MustCompile(`\b(?:over|more than|at least|above|greater than|exceeding)\s+` + numberPattern + `\+?\s+(views|likes)\b`)
	maxMetricRe  = regexp.MustCompile(`\b(?:under|less than|fewer than|below|at most)\s+` + numberPattern + `\s+(views|likes)\b`)
	minDaysRe    = regexp.MustCompile(`\btrending\s+(?:for\s+)?(?:more than|over|at least|longer than)\s+(\d+)\s+days?\b`)
	languageRe   = regexp.MustCompile(`\bin\s+(english|spanish|french|german|hindi|japanese|korean|portuguese|russian)\b`)
	countryRe    = regexp.MustCompile(`\b(` + countryAlternation() + `)\b`)
	countryUSRe  = regexp.MustCompile(`\bUSA?\b`)
	taggedRe     = regexp.MustCompile(`\btagged\s+(?:with\s+)?(?:"([^"]+)"|'([^']+)'|([\p{L}\p{N}_-]+))`)
	multiplierOf = map[string]int64{
		"k": 1_000, "thousand": 1_000,
		"m": 1_000_000, "million": 1_000_000,
		"b": 1_000_000_000, "billion": 1_000_000_000,
	}
)

func countryAlternation() string {
	names := make([]string, 0, len(countryCodes))
	for name := range countryCodes {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so "united kingdom" is preferred over shorter overlaps.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

// ExtractFilters recognizes metadata constraints in the query text. It is
// best-effort: unrecognized phrases produce no predicate and the result is
// nil when nothing was found.
func ExtractFilters(query string) *domain.Filter {
	lower := strings.ToLower(query)
	f := &domain.Filter{}

	if m := languageRe.FindStringSubmatchIndex(lower); m != nil {
		f.Language = languageCodes[lower[m[2]:m[3]]]
		// The language phrase must not also be read as a country adjective.
		lower = lower[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + lower[m[1]:]
	}

	if m := countryRe.FindStringSubmatch(lower); m != nil {
		f.Country = countryCodes[m[1]]
	} else if countryUSRe.MatchString(query) {
		f.Country = "US"
	}

	f.Category = firstCategory(lower)

	for _, m := range minMetricRe.FindAllStringSubmatch(lower, -1) {
		if n, ok := parseCount(m[1], m[2]); ok {
			setBound(f, m[3], &n, nil)
		}
	}
	for _, m := range maxMetricRe.FindAllStringSubmatch(lower, -1) {
		if n, ok := parseCount(m[1], m[2]); ok {
			setBound(f, m[3], nil, &n)
		}
	}

	if m := minDaysRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			f.DaysTrending = domain.AtLeast(n)
		}
	}

	for _, m := range taggedRe.FindAllStringSubmatch(query, -1) {
		for _, g := range m[1:] {
			if tag := strings.TrimSpace(g); tag != "" {
				f.Tags = append(f.Tags, strings.ToLower(tag))
				break
			}
		}
	}

	return f.Normalized()
}

// firstCategory returns the category whose keyword appears earliest.
func firstCategory(lower string) string {
	best, bestAt := "", -1
	for _, p := range categoryPatterns {
		loc := p.re.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		if bestAt < 0 || loc[0] < bestAt {
			best, bestAt = p.name, loc[0]
		}
	}
	return best
}

func setBound(f *domain.Filter, metric string, lo, hi *int64) {
	target := &f.Views
	if metric == "likes" {
		target = &f.Likes
	}
	if *target == nil {
		*target = &domain.Range{}
	}
	if lo != nil {
		(*target).Min = lo
	}
	if hi != nil {
		(*target).Max = hi
	}
}

// parseCount reads "1.5" with suffix "m" as 1500000. Commas are thousands separators
// unless they are followed by fewer than three digits.
func parseCount(digits, suffix string) (int64, bool) {
	digits = normalizeDigits(digits)
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if mult, ok := multiplierOf[suffix]; ok {
		v *= float64(mult)
	}
	return int64(v + 0.5), true
}

func normalizeDigits(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	parts := strings.Split(s, ",")
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return strings.ReplaceAll(s, ",", ".")
		}
	}
	return strings.ReplaceAll(s, ",", "")
}
