package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
)

const systemPrompt = `You are the query router for a trending-videos analysis system.
Classify the user's question into exactly one kind:

1. ANALYTICAL: ranking, counting, averaging, filtering or comparing. Questions centered on
   numeric aggregates (views, likes, comments, days trending) or exact attributes
   (category, channel, country, language, dates).
   Examples: "Top 10 channels by views", "Average likes for Gaming videos",
   "Videos trending for more than 5 days", "Compare views between Music and Sports".

2. SEMANTIC: content similarity, topic or theme discovery, "find videos about/like X".
   Examples: "Find videos about cooking tutorials", "Content related to fitness",
   "Videos similar to tech reviews".

3. HYBRID: the question contains BOTH an analytical and a semantic facet, typically joined by
   words such as "and also", "plus", "and suggest", "and find".
   Example: "Top 10 gaming channels by likes and also suggest videos about counter strike".

4. UNKNOWN: neither facet is clearly present.

Rules:
- analytical_subquery is required for ANALYTICAL and HYBRID; semantic_subquery is required for
  SEMANTIC and HYBRID. Leave the other empty.
- For HYBRID, copy each sub-query verbatim from the user's words. The two sub-queries must be
  different; never repeat the whole question in both.
- filters is optional. Use only these fields: category, category_id, country (ISO 3166 alpha-2),
  language (ISO 639-1), channel, tags (list), and views / likes / days_trending as
  {"min": N, "max": N} objects with either bound optional.
- For HYBRID, filters that belong to only one sub-query go in analytical_filters or
  semantic_filters instead; filters applies to the question as a whole.
- confidence is a number between 0 and 1.

Respond with a single JSON object and nothing else:
{"kind": "ANALYTICAL|SEMANTIC|HYBRID|UNKNOWN", "confidence": 0.0, "reasoning": "...",
 "analytical_subquery": "...", "semantic_subquery": "...", "filters": {},
 "analytical_filters": {}, "semantic_filters": {}}`

func userPrompt(query string) string {
	return "Query: " + query
}

// errMalformed marks LLM output that cannot be used as a routing decision.
var errMalformed = errors.New("malformed routing output")

type llmDecision struct {
	Kind               domain.RouteKind
	Confidence         float64
	Reasoning          string
	AnalyticalSubquery string
	SemanticSubquery   string
	Filters            *domain.Filter
	AnalyticalFilters  *domain.Filter
	SemanticFilters    *domain.Filter
}

type rawDecision struct {
	Kind               string          `json:"kind"`
	Confidence         *float64        `json:"confidence"`
	Reasoning          string          `json:"reasoning"`
	AnalyticalSubquery string          `json:"analytical_subquery"`
	SemanticSubquery   string          `json:"semantic_subquery"`
	Filters            json.RawMessage `json:"filters"`
	AnalyticalFilters  json.RawMessage `json:"analytical_filters"`
	SemanticFilters    json.RawMessage `json:"semantic_filters"`
}

// parseDecision validates the LLM reply. A filters value that does not decode is
// dropped rather than failing the whole decision.
func parseDecision(text string) (*llmDecision, error) {
	obj, ok := llm.ExtractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", errMalformed)
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	kind, ok := domain.ParseRouteKind(raw.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", errMalformed, raw.Kind)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", errMalformed)
	}
	if c := *raw.Confidence; c < 0 || c > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", errMalformed, c)
	}

	d := &llmDecision{
		Kind:               kind,
		Confidence:         *raw.Confidence,
		Reasoning:          strings.TrimSpace(raw.Reasoning),
		AnalyticalSubquery: strings.TrimSpace(raw.AnalyticalSubquery),
		SemanticSubquery:   strings.TrimSpace(raw.SemanticSubquery),
	}
	d.Filters = decodeFilter(raw.Filters)
	d.AnalyticalFilters = decodeFilter(raw.AnalyticalFilters)
	d.SemanticFilters = decodeFilter(raw.SemanticFilters)
	if d.Reasoning == "" {
		d.Reasoning = "classified by llm"
	}
	return d, nil
}

func decodeFilter(raw json.RawMessage) *domain.Filter {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f domain.Filter
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f.Normalized()
}
