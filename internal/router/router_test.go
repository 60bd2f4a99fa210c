package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/cache"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
)

const hybridQuery = "top 10 gaming channels based on likes and also suggest gaming videos related to counter strike"

func newTestRouter(completer llm.Completer) *Router {
	return New(nil, completer, nil, nil, DefaultConfig())
}

func TestRouter_LLMDecisions(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		reply          string
		wantKind       domain.RouteKind
		wantAnalytical string
		wantSemantic   string
		wantConfidence float64
	}{
		{
			name:           "analytical in code fence",
			query:          "Top 10 channels by total views",
			reply:          "```json\n{\"kind\":\"ANALYTICAL\",\"confidence\":0.92,\"reasoning\":\"ranking\",\"analytical_subquery\":\"Top 10 channels by total views\"}\n```",
			wantKind:       domain.RouteAnalytical,
			wantAnalytical: "Top 10 channels by total views",
			wantConfidence: 0.92,
		},
		{
			name:           "semantic with leading prose and missing subquery",
			query:          "Find cooking tutorial videos",
			reply:          `Here you go: {"kind":"semantic","confidence":0.8,"reasoning":"topic search"}`,
			wantKind:       domain.RouteSemantic,
			wantSemantic:   "Find cooking tutorial videos",
			wantConfidence: 0.8,
		},
		{
			name:           "hybrid with distinct subqueries",
			query:          hybridQuery,
			reply:          `{"kind":"HYBRID","confidence":0.9,"reasoning":"both","analytical_subquery":"top 10 gaming channels based on likes","semantic_subquery":"gaming videos related to counter strike"}`,
			wantKind:       domain.RouteHybrid,
			wantAnalytical: "top 10 gaming channels based on likes",
			wantSemantic:   "gaming videos related to counter strike",
			wantConfidence: 0.9,
		},
		{
			name:           "hybrid echoing the full query is split",
			query:          hybridQuery,
			reply:          `{"kind":"HYBRID","confidence":0.85,"reasoning":"both","analytical_subquery":"` + hybridQuery + `","semantic_subquery":"` + hybridQuery + `"}`,
			wantKind:       domain.RouteHybrid,
			wantAnalytical: "top 10 gaming channels based on likes",
			wantSemantic:   "suggest gaming videos related to counter strike",
			wantConfidence: 0.85,
		},
		{
			name:           "hybrid missing semantic subquery split on connector",
			query:          hybridQuery,
			reply:          `{"kind":"HYBRID","confidence":0.7,"reasoning":"both","analytical_subquery":"top 10 gaming channels"}`,
			wantKind:       domain.RouteHybrid,
			wantAnalytical: "top 10 gaming channels based on likes",
			wantSemantic:   "suggest gaming videos related to counter strike",
			wantConfidence: 0.7,
		},
		{
			name:           "hybrid missing semantic subquery without connector downgrades",
			query:          "Gaming videos about Minecraft with more than 1M views",
			reply:          `{"kind":"HYBRID","confidence":0.7,"reasoning":"both","analytical_subquery":"Gaming videos with more than 1M views"}`,
			wantKind:       domain.RouteAnalytical,
			wantAnalytical: "Gaming videos with more than 1M views",
			wantConfidence: 0.7,
		},
		{
			name:           "hybrid missing analytical subquery without connector downgrades",
			query:          "Gaming videos about Minecraft with more than 1M views",
			reply:          `{"kind":"HYBRID","confidence":0.6,"reasoning":"both","semantic_subquery":"Minecraft"}`,
			wantKind:       domain.RouteSemantic,
			wantSemantic:   "Minecraft",
			wantConfidence: 0.6,
		},
		{
			name:           "unknown carries no subqueries",
			query:          "what is going on today",
			reply:          `{"kind":"UNKNOWN","confidence":0.2,"reasoning":"unclear"}`,
			wantKind:       domain.RouteUnknown,
			wantConfidence: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := llm.NewScripted().Reply(llm.PurposeRoute, tt.reply)
			d := newTestRouter(completer).Route(context.Background(), tt.query)

			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.wantAnalytical, d.AnalyticalSubquery)
			assert.Equal(t, tt.wantSemantic, d.SemanticSubquery)
			assert.InDelta(t, tt.wantConfidence, d.Confidence, 1e-9)
			assert.False(t, d.Degraded)
			assert.Equal(t, 1, completer.CallCount(llm.PurposeRoute))
		})
	}
}

func TestRouter_FallsBackOnBadOutput(t *testing.T) {
	tests := []struct {
		name      string
		completer *llm.ScriptedCompleter
		wantCause string
	}{
		{"llm error", llm.NewScripted().Fail(llm.PurposeRoute, errors.New("connection refused")), "connection refused"},
		{"not json", llm.NewScripted().Reply(llm.PurposeRoute, "I think it is analytical"), "malformed"},
		{"unknown kind", llm.NewScripted().Reply(llm.PurposeRoute, `{"kind":"SQL","confidence":0.9}`), "unknown kind"},
		{"missing confidence", llm.NewScripted().Reply(llm.PurposeRoute, `{"kind":"ANALYTICAL"}`), "missing confidence"},
		{"confidence out of range", llm.NewScripted().Reply(llm.PurposeRoute, `{"kind":"ANALYTICAL","confidence":1.5}`), "outside [0,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestRouter(tt.completer).Route(context.Background(), hybridQuery)

			assert.True(t, d.Degraded)
			assert.Equal(t, string(domain.ErrorKindRouterDegraded), d.Diagnostics["router_degraded"])
			assert.Contains(t, d.Diagnostics["router_error"], tt.wantCause)
			assert.Equal(t, 0.55, d.Confidence)
			assert.Equal(t, domain.RouteHybrid, d.Kind)
			assert.Equal(t, "top 10 gaming channels based on likes", d.AnalyticalSubquery)
			assert.Equal(t, "suggest gaming videos related to counter strike", d.SemanticSubquery)
			assert.Equal(t, "Gaming", d.Filters.Category)
		})
	}
}

func TestRouter_HybridWithoutSubqueriesUsesKeywordSplit(t *testing.T) {
	completer := llm.NewScripted().Reply(llm.PurposeRoute, `{"kind":"HYBRID","confidence":0.9,"reasoning":"both"}`)
	d := newTestRouter(completer).Route(context.Background(), hybridQuery)

	assert.False(t, d.Degraded)
	assert.Equal(t, domain.RouteHybrid, d.Kind)
	assert.Equal(t, "top 10 gaming channels based on likes", d.AnalyticalSubquery)
	assert.Equal(t, 0.9, d.Confidence)
}

func TestRouter_NilCompleterDegrades(t *testing.T) {
	d := newTestRouter(nil).Route(context.Background(), "Top 10 channels by total views")
	assert.True(t, d.Degraded)
	assert.Equal(t, domain.RouteAnalytical, d.Kind)
	assert.Equal(t, "no llm configured", d.Diagnostics["router_error"])
}

func TestRouter_ShortQuerySkipsLLM(t *testing.T) {
	completer := llm.NewScripted().Reply(llm.PurposeRoute, `{"kind":"ANALYTICAL","confidence":0.9}`)
	r := newTestRouter(completer)

	for _, q := range []string{"asdfqwer", "  cooking  videos "} {
		d := r.Route(context.Background(), q)
		assert.Equal(t, domain.RouteSemantic, d.Kind, q)
		assert.Equal(t, 0.3, d.Confidence)
		assert.Equal(t, domain.NormalizeQuery(q), d.SemanticSubquery)
	}
	assert.Zero(t, completer.CallCount(llm.PurposeRoute))
}

func TestRouter_MergesFilters(t *testing.T) {
	completer := llm.NewScripted().Reply(llm.PurposeRoute,
		`{"kind":"HYBRID","confidence":0.9,"reasoning":"both",
		  "analytical_subquery":"Gaming videos with more than 1M views","semantic_subquery":"Minecraft",
		  "filters":{"views":{"min":2000000},"country":"us"}}`)
	d := newTestRouter(completer).Route(context.Background(), "Gaming videos about Minecraft with more than 1M views")

	require.NotNil(t, d.Filters)
	assert.Equal(t, "Gaming", d.Filters.Category)
	assert.Equal(t, "us", d.Filters.Country)
	require.NotNil(t, d.Filters.Views)
	assert.Equal(t, int64(2_000_000), *d.Filters.Views.Min)
}

func TestRouter_HybridScopesFiltersPerSubquery(t *testing.T) {
	const q = "top 10 gaming channels by likes and also find music videos about live concerts"

	tests := []struct {
		name           string
		completer      llm.Completer
		wantDegraded   bool
		wantAnalytical *domain.Filter
		wantSemantic   *domain.Filter
	}{
		{
			name:           "keyword fallback",
			completer:      llm.Disabled{},
			wantDegraded:   true,
			wantAnalytical: &domain.Filter{Category: "Gaming"},
			wantSemantic:   &domain.Filter{Category: "Music"},
		},
		{
			name: "llm whole-question filter stays off the agents",
			completer: llm.NewScripted().Reply(llm.PurposeRoute,
				`{"kind":"HYBRID","confidence":0.9,"reasoning":"both",
				  "analytical_subquery":"top 10 gaming channels by likes","semantic_subquery":"music videos about live concerts",
				  "filters":{"category":"Gaming"}}`),
			wantAnalytical: &domain.Filter{Category: "Gaming"},
			wantSemantic:   &domain.Filter{Category: "Music"},
		},
		{
			name: "llm side filters win",
			completer: llm.NewScripted().Reply(llm.PurposeRoute,
				`{"kind":"HYBRID","confidence":0.9,"reasoning":"both",
				  "analytical_subquery":"top 10 gaming channels by likes","semantic_subquery":"videos about live concerts",
				  "semantic_filters":{"category":"Music","country":"GB"}}`),
			wantAnalytical: &domain.Filter{Category: "Gaming"},
			wantSemantic:   &domain.Filter{Category: "Music", Country: "GB"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestRouter(tt.completer).Route(context.Background(), q)

			require.Equal(t, domain.RouteHybrid, d.Kind)
			assert.Equal(t, tt.wantDegraded, d.Degraded)
			assert.Equal(t, tt.wantAnalytical, d.FilterFor(domain.SourceAnalytical))
			assert.Equal(t, tt.wantSemantic, d.FilterFor(domain.SourceSemantic))
		})
	}
}

func TestRouter_IgnoresUndecodableLLMFilters(t *testing.T) {
	completer := llm.NewScripted().Reply(llm.PurposeRoute,
		`{"kind":"ANALYTICAL","confidence":0.9,"reasoning":"r","analytical_subquery":"gaming with over 1M views","filters":{"views":1000}}`)
	d := newTestRouter(completer).Route(context.Background(), "gaming videos with over 1M views")

	assert.False(t, d.Degraded)
	assert.Equal(t, &domain.Filter{Category: "Gaming", Views: domain.AtLeast(1_000_000)}, d.Filters)
}

func TestRouter_Cache(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CacheTTL = time.Minute

	t.Run("caches llm decisions", func(t *testing.T) {
		completer := llm.NewScripted().Reply(llm.PurposeRoute,
			`{"kind":"ANALYTICAL","confidence":0.9,"reasoning":"r","analytical_subquery":"Top channels by views"}`)
		r := New(nil, completer, cache.NewMemoryClient(16), nil, cfg)

		first := r.Route(ctx, "Top channels by views")
		second := r.Route(ctx, "top  channels by VIEWS")
		assert.Equal(t, 1, completer.CallCount(llm.PurposeRoute))
		assert.Equal(t, first, second)
	})

	t.Run("does not cache degraded decisions", func(t *testing.T) {
		completer := llm.NewScripted().Fail(llm.PurposeRoute, errors.New("boom"))
		r := New(nil, completer, cache.NewMemoryClient(16), nil, cfg)

		r.Route(ctx, "Top channels by views")
		r.Route(ctx, "Top channels by views")
		assert.Equal(t, 2, completer.CallCount(llm.PurposeRoute))
	})
}

func TestRouter_Idempotent(t *testing.T) {
	r := newTestRouter(llm.Disabled{})
	q := "Find the most popular cooking channels and also suggest similar baking videos"
	assert.Equal(t, r.Route(context.Background(), q).Kind, r.Route(context.Background(), q).Kind)
}
