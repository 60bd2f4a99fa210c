package analytical

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/storage"
)

const translateSystem = `You translate questions about trending videos into a single SQL query.

%s
Rules:
1. Produce exactly one read-only SELECT statement (a WITH clause is allowed). Never modify data.
2. Query only the %s table and only the columns listed above.
3. When the result has one row per video, break ORDER BY ties with video_id ASC.
4. Use LIMIT 10 unless the question names a number of results.
5. Use readable aliases for aggregates, e.g. SUM(views) AS total_views.
6. Compare text columns case-insensitively with LOWER(column) = LOWER('value').
%s
Common patterns:
- Top channels by views: SELECT channel_title, SUM(views) AS total_views FROM %[2]s GROUP BY channel_title ORDER BY total_views DESC, channel_title ASC LIMIT 10
- Average likes per category: SELECT category_name, AVG(likes) AS avg_likes FROM %[2]s GROUP BY category_name ORDER BY avg_likes DESC
- Longest trending videos: SELECT title, channel_title, days_trending_unique FROM %[2]s ORDER BY days_trending_unique DESC, video_id ASC LIMIT 10

Respond with the SQL only, without explanation or markdown.`

const paraphraseSystem = `You summarize SQL query results about trending videos for a non-technical reader.
Use short markdown bullet points and put channel, video and category names in **bold**.
Report only numbers present in the rows. Do not mention SQL, tables or columns.`

// Predicates renders the filter as SQL conditions, one per populated field.
func Predicates(f *domain.Filter) []string {
	if f.IsEmpty() {
		return nil
	}
	var out []string
	eq := func(col, val string) {
		out = append(out, fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, quote(val)))
	}
	rng := func(col string, r *domain.Range) {
		if r == nil {
			return
		}
		switch {
		case r.Min != nil && r.Max != nil:
			out = append(out, fmt.Sprintf("%s BETWEEN %d AND %d", col, *r.Min, *r.Max))
		case r.Min != nil:
			out = append(out, fmt.Sprintf("%s >= %d", col, *r.Min))
		case r.Max != nil:
			out = append(out, fmt.Sprintf("%s <= %d", col, *r.Max))
		}
	}

	if f.Category != "" {
		eq("category_name", f.Category)
	}
	if f.CategoryID != nil {
		out = append(out, fmt.Sprintf("category_id = %d", *f.CategoryID))
	}
	if f.Country != "" {
		eq("country", f.Country)
	}
	if f.Language != "" {
		eq("language", f.Language)
	}
	if f.Channel != "" {
		eq("channel_title", f.Channel)
	}
	rng("views", f.Views)
	rng("likes", f.Likes)
	rng("days_trending_unique", f.DaysTrending)
	if len(f.Tags) > 0 {
		tags := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			tags[i] = fmt.Sprintf("LOWER(tags) LIKE %s", quote("%"+strings.ToLower(t)+"%"))
		}
		if len(tags) == 1 {
			out = append(out, tags[0])
		} else {
			out = append(out, "("+strings.Join(tags, " OR ")+")")
		}
	}
	return out
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func translatePrompt(driver, table string, f *domain.Filter) string {
	var filterRule string
	if preds := Predicates(f); len(preds) > 0 {
		filterRule = "7. The WHERE clause MUST include all of these conditions:\n   " +
			strings.Join(preds, "\n   AND ") + "\n"
	}
	return fmt.Sprintf(translateSystem, storage.SchemaDescription(driver, table), table, filterRule)
}

func translateUser(question, feedback string) string {
	if feedback == "" {
		return "Question: " + question
	}
	return fmt.Sprintf("Question: %s\n\nYour previous query was rejected: %s\nReturn a corrected query.", question, feedback)
}

func paraphraseUser(question string, res *storage.Result, preview int) string {
	rows := res.Rows
	if len(rows) > preview {
		rows = rows[:preview]
	}
	data, _ := json.Marshal(rows)
	return fmt.Sprintf("Question: %s\nRows returned: %d\nFirst %d rows (JSON):\n%s",
		question, len(res.Rows), len(rows), data)
}

// unenforcedFilter returns the first filter condition the statement does not
// apply, or "" when every populated field is enforced. A condition counts when
// its rendered predicate appears verbatim or the statement compares the same
// column at least as tightly.
func unenforcedFilter(query string, f *domain.Filter) string {
	if f.IsEmpty() {
		return ""
	}
	sql := normalizeSQL(query)

	type condition struct {
		part    domain.Filter
		applied func() bool
	}
	var conds []condition
	text := func(part domain.Filter, col, val string) {
		conds = append(conds, condition{part, func() bool { return comparesText(sql, col, val) }})
	}
	rng := func(part domain.Filter, col string, r *domain.Range) {
		if r != nil {
			conds = append(conds, condition{part, func() bool { return boundsRange(sql, col, r) }})
		}
	}

	if f.Category != "" {
		text(domain.Filter{Category: f.Category}, "category_name", f.Category)
	}
	if f.CategoryID != nil {
		id := *f.CategoryID
		conds = append(conds, condition{domain.Filter{CategoryID: &id}, func() bool {
			return regexp.MustCompile(fmt.Sprintf(`\bcategory_id\b\s*=\s*%d\b`, id)).MatchString(sql)
		}})
	}
	if f.Country != "" {
		text(domain.Filter{Country: f.Country}, "country", f.Country)
	}
	if f.Language != "" {
		text(domain.Filter{Language: f.Language}, "language", f.Language)
	}
	if f.Channel != "" {
		text(domain.Filter{Channel: f.Channel}, "channel_title", f.Channel)
	}
	rng(domain.Filter{Views: f.Views}, "views", f.Views)
	rng(domain.Filter{Likes: f.Likes}, "likes", f.Likes)
	rng(domain.Filter{DaysTrending: f.DaysTrending}, "days_trending_unique", f.DaysTrending)
	if len(f.Tags) > 0 {
		conds = append(conds, condition{domain.Filter{Tags: f.Tags}, func() bool { return matchesTag(sql, f.Tags) }})
	}

	for _, c := range conds {
		preds := Predicates(&c.part)
		if len(preds) == 0 {
			continue
		}
		if !strings.Contains(sql, normalizeSQL(preds[0])) && !c.applied() {
			return preds[0]
		}
	}
	return ""
}

func normalizeSQL(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sqlLiteral(val string) string {
	return regexp.QuoteMeta(quote(strings.ToLower(val)))
}

// comparesText matches col = 'val' or LIKE, with or without LOWER() on
// either side.
func comparesText(sql, col, val string) bool {
	re := regexp.MustCompile(`(?:lower\(\s*)?\b` + col + `\b\s*\)?\s*(?:=|like)\s*(?:lower\(\s*)?` + sqlLiteral(val))
	return re.MatchString(sql)
}

func matchesTag(sql string, tags []string) bool {
	for _, t := range tags {
		re := regexp.MustCompile(`\btags\b\s*\)?\s*like\s*` + sqlLiteral("%"+t+"%"))
		if re.MatchString(sql) {
			return true
		}
	}
	return false
}

// boundsRange reports whether comparisons on col are at least as tight as
// each populated bound of r.
func boundsRange(sql, col string, r *domain.Range) bool {
	minOK, maxOK := r.Min == nil, r.Max == nil
	bound := func(lo, hi *int64) {
		if r.Min != nil && lo != nil && *lo >= *r.Min {
			minOK = true
		}
		if r.Max != nil && hi != nil && *hi <= *r.Max {
			maxOK = true
		}
	}

	cmp := regexp.MustCompile(`\b` + col + `\b\s*(>=|<=|>|<|=)\s*(-?\d+)\b`)
	for _, m := range cmp.FindAllStringSubmatch(sql, -1) {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case ">=":
			bound(&n, nil)
		case ">":
			lo := n + 1
			bound(&lo, nil)
		case "<=":
			bound(nil, &n)
		case "<":
			hi := n - 1
			bound(nil, &hi)
		case "=":
			bound(&n, &n)
		}
	}

	between := regexp.MustCompile(`\b` + col + `\b\s+between\s+(-?\d+)\s+and\s+(-?\d+)\b`)
	for _, m := range between.FindAllStringSubmatch(sql, -1) {
		lo, err1 := strconv.ParseInt(m[1], 10, 64)
		hi, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 == nil && err2 == nil {
			bound(&lo, &hi)
		}
	}
	return minOK && maxOK
}

var (
	sqlLineStart = regexp.MustCompile(`(?im)^\s*(select|with)\b`)
	sqlSelect    = regexp.MustCompile(`(?i)\bselect\b`)
)

// extractSQL cleans model output down to the statement: code fences, a
// leading "SQL:" label and any prose before the first SELECT/WITH are dropped.
func extractSQL(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "sql")
		s = strings.TrimPrefix(s, "SQL")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	if loc := sqlLineStart.FindStringIndex(s); loc != nil {
		s = s[loc[0]:]
	} else if loc := sqlSelect.FindStringIndex(s); loc != nil {
		s = s[loc[0]:]
	}
	return strings.TrimSpace(s)
}
