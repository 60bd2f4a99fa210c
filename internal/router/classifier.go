package router

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spherical-ai/trendscope/internal/domain"
)

var (
	analyticalLexicon = phrases(
		"top", "most", "least", "count", "how many", "average", "sum", "rank",
		"compare", "statistics", "channels by", "versus",
	)
	semanticLexicon = phrases(
		"find", "search", "about", "related", "similar", "recommend", "suggest",
		"videos on", "like",
	)
	// connectors are ordered longest first so "and also" wins over "also".
	connectors = phrases("and also", "also", "and suggest", "and find", "plus", "and show")
)

func phrases(entries ...string) [][]string {
	out := make([][]string, len(entries))
	for i, e := range entries {
		out[i] = strings.Fields(e)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// token is a lowercased word with its byte offsets in the source query.
type token struct {
	text       string
	start, end int
}

// tokenize splits q on every rune that is neither a letter nor a digit.
func tokenize(q string) []token {
	var toks []token
	start := -1
	for i, r := range q {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			toks = append(toks, token{text: strings.ToLower(q[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: strings.ToLower(q[start:]), start: start, end: len(q)})
	}
	return toks
}

func matchAt(toks []token, i int, phrase []string) bool {
	if i+len(phrase) > len(toks) {
		return false
	}
	for k, w := range phrase {
		if toks[i+k].text != w {
			return false
		}
	}
	return true
}

func countHits(toks []token, lexicon [][]string) int {
	n := 0
	for i := range toks {
		for _, p := range lexicon {
			if matchAt(toks, i, p) {
				n++
			}
		}
	}
	return n
}

func firstHit(toks []token, lexicon [][]string) int {
	for i := range toks {
		for _, p := range lexicon {
			if matchAt(toks, i, p) {
				return i
			}
		}
	}
	return -1
}

// findConnector returns the token span [from, to) of the earliest connector.
func findConnector(toks []token) (from, to int, phrase string, ok bool) {
	for i := range toks {
		for _, c := range connectors {
			if matchAt(toks, i, c) {
				return i, i + len(c), strings.Join(c, " "), true
			}
		}
	}
	return 0, 0, "", false
}

func cleanPart(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// Classifier is the deterministic keyword classifier used when the LLM path
// is unavailable or returns something unusable. It never fails.
type Classifier struct {
	confidence  float64
	shortTokens int
}

// NewClassifier creates a classifier reporting the given fixed confidence.
// Queries of at most shortTokens tokens without lexicon hits classify as SEMANTIC.
func NewClassifier(confidence float64, shortTokens int) *Classifier {
	if confidence <= 0 || confidence > 1 {
		confidence = 0.55
	}
	if shortTokens <= 0 {
		shortTokens = 3
	}
	return &Classifier{confidence: confidence, shortTokens: shortTokens}
}

// Classify returns a decision without filters.
func (c *Classifier) Classify(query string) domain.RoutingDecision {
	toks := tokenize(query)
	a := countHits(toks, analyticalLexicon)
	s := countHits(toks, semanticLexicon)

	if from, to, phrase, ok := findConnector(toks); ok && a+s > 0 {
		reason := fmt.Sprintf("keyword fallback: connector %q with %d analytical and %d semantic terms", phrase, a, s)
		return c.hybrid(query, toks, from, to, a, s, reason)
	}

	switch {
	case a > 0 && s == 0:
		return domain.NewAnalyticalDecision(query, c.confidence,
			fmt.Sprintf("keyword fallback: %d analytical terms", a), nil)
	case s > 0 && a == 0:
		return domain.NewSemanticDecision(query, c.confidence,
			fmt.Sprintf("keyword fallback: %d semantic terms", s), nil)
	case a > 0 && s > 0:
		at := boundary(toks)
		if at < 0 {
			return c.degenerate(query, a, s)
		}
		reason := fmt.Sprintf("keyword fallback: %d analytical and %d semantic terms", a, s)
		return c.hybrid(query, toks, at, at, a, s, reason)
	case len(toks) <= c.shortTokens:
		return domain.NewSemanticDecision(query, c.confidence,
			"keyword fallback: short query without analytical terms", nil)
	default:
		return domain.NewUnknownDecision(c.confidence, "keyword fallback: no analytical or semantic terms", nil)
	}
}

// Split divides a compound query into its analytical and semantic parts. The
// first connector is used when present, otherwise the first lexicon boundary.
func (c *Classifier) Split(query string) (analytical, semantic string, ok bool) {
	if analytical, semantic, ok = c.SplitOnConnector(query); ok {
		return analytical, semantic, true
	}
	toks := tokenize(query)
	at := boundary(toks)
	if at < 0 {
		return "", "", false
	}
	return assign(query, toks, at, at)
}

// SplitOnConnector divides the query at the first connector only.
func (c *Classifier) SplitOnConnector(query string) (analytical, semantic string, ok bool) {
	toks := tokenize(query)
	from, to, _, found := findConnector(toks)
	if !found {
		return "", "", false
	}
	return assign(query, toks, from, to)
}

func (c *Classifier) hybrid(query string, toks []token, from, to, a, s int, reason string) domain.RoutingDecision {
	analytical, semantic, ok := assign(query, toks, from, to)
	if !ok {
		return c.degenerate(query, a, s)
	}
	return domain.NewHybridDecision(analytical, semantic, c.confidence, reason, nil)
}

// degenerate handles splits where one half came out empty.
func (c *Classifier) degenerate(query string, a, s int) domain.RoutingDecision {
	switch {
	case a > 0 && s == 0:
		return domain.NewAnalyticalDecision(query, c.confidence, "keyword fallback: degenerate split, analytical terms only", nil)
	case s > 0 && a == 0:
		return domain.NewSemanticDecision(query, c.confidence, "keyword fallback: degenerate split, semantic terms only", nil)
	default:
		return domain.NewUnknownDecision(c.confidence, "keyword fallback: degenerate split", nil)
	}
}

// boundary picks the split point for a query with no connector: the first
// semantic term, or the first analytical term when the query opens with a
// semantic one.
func boundary(toks []token) int {
	if at := firstHit(toks, semanticLexicon); at > 0 {
		return at
	}
	if at := firstHit(toks, analyticalLexicon); at > 0 {
		return at
	}
	return -1
}

// assign splits the query around tokens [from, to) and gives the half with
// more analytical terms to the analytical agent. Ties keep the left half analytical.
func assign(query string, toks []token, from, to int) (analytical, semantic string, ok bool) {
	if from <= 0 || from >= len(toks) {
		return "", "", false
	}
	left := cleanPart(query[:toks[from].start])
	var right string
	if to > from {
		right = cleanPart(query[toks[to-1].end:])
	} else {
		right = cleanPart(query[toks[from].start:])
	}
	if left == "" || right == "" || strings.EqualFold(left, right) {
		return "", "", false
	}

	if countHits(tokenize(right), analyticalLexicon) > countHits(tokenize(left), analyticalLexicon) {
		return right, left, true
	}
	return left, right, true
}
