// Package router classifies questions and splits compound ones into
// per-agent sub-queries.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/spherical-ai/trendscope/internal/cache"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// Config holds router configuration.
type Config struct {
	FallbackConfidence   float64
	ShortQueryConfidence float64
	// Queries with fewer tokens skip the LLM and classify as SEMANTIC.
	ShortQueryTokens int
	// CacheTTL enables the decision cache when positive.
	CacheTTL  time.Duration
	MaxTokens int
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		FallbackConfidence:   0.55,
		ShortQueryConfidence: 0.3,
		ShortQueryTokens:     3,
		MaxTokens:            512,
	}
}

// Router produces a RoutingDecision for every query. It never fails.
type Router struct {
	logger     *observability.Logger
	completer  llm.Completer
	cache      cache.Client
	metrics    *observability.Metrics
	classifier *Classifier
	config     Config
}

// New creates a router. completer, cacheClient and metrics may be nil.
func New(
	logger *observability.Logger,
	completer llm.Completer,
	cacheClient cache.Client,
	metrics *observability.Metrics,
	cfg Config,
) *Router {
	defaults := DefaultConfig()
	if cfg.FallbackConfidence <= 0 || cfg.FallbackConfidence > 1 {
		cfg.FallbackConfidence = defaults.FallbackConfidence
	}
	if cfg.ShortQueryConfidence <= 0 || cfg.ShortQueryConfidence > 1 {
		cfg.ShortQueryConfidence = defaults.ShortQueryConfidence
	}
	if cfg.ShortQueryTokens <= 0 {
		cfg.ShortQueryTokens = defaults.ShortQueryTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Router{
		logger:     logger,
		completer:  completer,
		cache:      cacheClient,
		metrics:    metrics,
		classifier: NewClassifier(cfg.FallbackConfidence, cfg.ShortQueryTokens),
		config:     cfg,
	}
}

// Route classifies the query. At most one LLM call is made; any failure on
// that path falls back to the keyword classifier and is recorded in the
// decision's diagnostics.
func (r *Router) Route(ctx context.Context, query string) domain.RoutingDecision {
	q := domain.NormalizeQuery(query)
	logger := r.logger.WithContext(ctx)
	filters := ExtractFilters(q)

	if len(tokenize(q)) < r.config.ShortQueryTokens {
		d := domain.NewSemanticDecision(q, r.config.ShortQueryConfidence, "short query routed to semantic search", filters)
		r.observe(d)
		return d
	}

	key := r.cacheKey(q)
	if d, ok := r.cached(ctx, key); ok {
		logger.Debug().Str("kind", string(d.Kind)).Msg("Routing cache hit")
		r.observe(d)
		return d
	}

	d, err := r.routeWithLLM(ctx, q)
	if err != nil {
		logger.Warn().Err(err).Str("query", q).Msg("Router LLM path failed, using keyword fallback")
		d = r.classifier.Classify(q)
		d.Filters = filters
		scopeHybrid(&d)
		d.MarkDegraded(err.Error())
		r.observe(d)
		return d
	}

	d.Filters = filters.Merge(d.Filters)
	scopeHybrid(&d)
	logger.Debug().
		Str("kind", string(d.Kind)).
		Float64("confidence", d.Confidence).
		Str("filters", d.Filters.String()).
		Msg("Query routed")

	r.store(ctx, key, d)
	r.observe(d)
	return d
}

func (r *Router) routeWithLLM(ctx context.Context, q string) (domain.RoutingDecision, error) {
	if r.completer == nil {
		return domain.RoutingDecision{}, errors.New("no llm configured")
	}
	text, err := r.completer.Complete(ctx, llm.Request{
		Purpose:   llm.PurposeRoute,
		System:    systemPrompt,
		User:      userPrompt(q),
		MaxTokens: r.config.MaxTokens,
	})
	if err != nil {
		return domain.RoutingDecision{}, err
	}
	parsed, err := parseDecision(text)
	if err != nil {
		return domain.RoutingDecision{}, err
	}
	return r.fromLLM(q, parsed)
}

// fromLLM builds the decision, repairing HYBRID replies whose sub-queries are
// missing or echo the whole question.
func (r *Router) fromLLM(q string, p *llmDecision) (domain.RoutingDecision, error) {
	var d domain.RoutingDecision
	switch p.Kind {
	case domain.RouteAnalytical:
		d = domain.NewAnalyticalDecision(orQuery(p.AnalyticalSubquery, q), p.Confidence, p.Reasoning, p.Filters)
	case domain.RouteSemantic:
		d = domain.NewSemanticDecision(orQuery(p.SemanticSubquery, q), p.Confidence, p.Reasoning, p.Filters)
	case domain.RouteUnknown:
		d = domain.NewUnknownDecision(p.Confidence, p.Reasoning, p.Filters)
	case domain.RouteHybrid:
		d, err := r.hybrid(q, p)
		if err == nil && d.Kind == domain.RouteHybrid {
			d.ScopeFilters(p.AnalyticalFilters, p.SemanticFilters)
		}
		return d, err
	}
	return d, nil
}

// scopeHybrid gives each agent of a HYBRID decision the filters found in its
// own sub-query, so a facet named in one half never restricts the other.
// Filters the LLM scoped to a side win over the extracted ones.
func scopeHybrid(d *domain.RoutingDecision) {
	if d.Kind != domain.RouteHybrid {
		return
	}
	d.ScopeFilters(
		ExtractFilters(d.AnalyticalSubquery).Merge(d.AnalyticalFilters),
		ExtractFilters(d.SemanticSubquery).Merge(d.SemanticFilters),
	)
}

func (r *Router) hybrid(q string, p *llmDecision) (domain.RoutingDecision, error) {
	a, s := p.AnalyticalSubquery, p.SemanticSubquery
	echoed := sameText(a, q) || sameText(s, q) || (a != "" && sameText(a, s))

	switch {
	case a != "" && s != "" && !echoed:
		return domain.NewHybridDecision(a, s, p.Confidence, p.Reasoning, p.Filters), nil

	case echoed || (a == "" && s == ""):
		if sa, ss, ok := r.classifier.Split(q); ok {
			return domain.NewHybridDecision(sa, ss, p.Confidence, p.Reasoning+" (sub-queries split on keywords)", p.Filters), nil
		}
		return domain.RoutingDecision{}, errors.New("hybrid decision without distinct sub-queries")

	case a == "":
		if sa, ss, ok := r.classifier.SplitOnConnector(q); ok {
			return domain.NewHybridDecision(sa, ss, p.Confidence, p.Reasoning+" (analytical sub-query split on connector)", p.Filters), nil
		}
		return domain.NewSemanticDecision(s, p.Confidence, p.Reasoning+" (downgraded from hybrid)", p.Filters), nil

	default:
		if sa, ss, ok := r.classifier.SplitOnConnector(q); ok {
			return domain.NewHybridDecision(sa, ss, p.Confidence, p.Reasoning+" (semantic sub-query split on connector)", p.Filters), nil
		}
		return domain.NewAnalyticalDecision(a, p.Confidence, p.Reasoning+" (downgraded from hybrid)", p.Filters), nil
	}
}

func (r *Router) observe(d domain.RoutingDecision) {
	r.metrics.ObserveRoute(string(d.Kind), d.Degraded)
}

func (r *Router) cacheKey(q string) string {
	model := ""
	if r.completer != nil {
		model = r.completer.Model()
	}
	return cache.HashKey("route", strings.ToLower(q), model)
}

func (r *Router) cached(ctx context.Context, key string) (domain.RoutingDecision, bool) {
	if r.cache == nil || r.config.CacheTTL <= 0 {
		return domain.RoutingDecision{}, false
	}
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn().Err(err).Msg("Routing cache read failed")
		}
		return domain.RoutingDecision{}, false
	}
	var d domain.RoutingDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.RoutingDecision{}, false
	}
	return d, true
}

func (r *Router) store(ctx context.Context, key string, d domain.RoutingDecision) {
	if r.cache == nil || r.config.CacheTTL <= 0 || d.Degraded {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.config.CacheTTL); err != nil {
		r.logger.Warn().Err(err).Msg("Routing cache write failed")
	}
}

func orQuery(sub, q string) string {
	if sub == "" {
		return q
	}
	return sub
}

// sameText compares ignoring case, surrounding punctuation and whitespace runs.
func sameText(a, b string) bool {
	norm := func(s string) string {
		s = strings.TrimFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) })
		return strings.ToLower(domain.NormalizeQuery(s))
	}
	na := norm(a)
	return na != "" && na == norm(b)
}
