// Package orchestrator runs a question through routing, parallel agent
// dispatch and synthesis under a single deadline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/synthesizer"
)

// Router classifies a question. It never fails.
type Router interface {
	Route(ctx context.Context, query string) domain.RoutingDecision
}

// Synthesizer composes the final answer. It never fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesizer.Input) synthesizer.Output
}

// Config holds orchestrator settings.
type Config struct {
	DefaultDeadline   time.Duration
	MaxConcurrent     int
	Admission         string
	QueryCeiling      int
	DefaultMaxResults int
	DefaultMinScore   float64
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		DefaultDeadline:   60 * time.Second,
		MaxConcurrent:     16,
		Admission:         AdmissionReject,
		QueryCeiling:      domain.DefaultQueryCeiling,
		DefaultMaxResults: 10,
		DefaultMinScore:   0.3,
	}
}

// Orchestrator answers questions. Each Answer call is independent; the only
// shared state is the admission semaphore.
type Orchestrator struct {
	logger    *observability.Logger
	router    Router
	synth     Synthesizer
	metrics   *observability.Metrics
	agents    map[domain.Source]domain.Agent
	admission *admission
	config    Config
}

// New creates an orchestrator over the enabled agents. A source with no agent
// is treated as disabled: questions that need it get DEPENDENCY_UNAVAILABLE
// for that facet.
func New(
	logger *observability.Logger,
	router Router,
	synth Synthesizer,
	metrics *observability.Metrics,
	cfg Config,
	agents ...domain.Agent,
) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.DefaultDeadline <= 0 || cfg.DefaultDeadline > MaxDeadline {
		cfg.DefaultDeadline = defaults.DefaultDeadline
	}
	if cfg.QueryCeiling <= 0 {
		cfg.QueryCeiling = defaults.QueryCeiling
	}
	if cfg.DefaultMaxResults < MinMaxResults || cfg.DefaultMaxResults > MaxMaxResults {
		cfg.DefaultMaxResults = defaults.DefaultMaxResults
	}
	if cfg.DefaultMinScore < 0 || cfg.DefaultMinScore > 1 {
		cfg.DefaultMinScore = defaults.DefaultMinScore
	}
	if cfg.Admission == "" {
		cfg.Admission = AdmissionReject
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	bySource := make(map[domain.Source]domain.Agent, len(agents))
	for _, a := range agents {
		if a != nil {
			bySource[a.Source()] = a
		}
	}

	return &Orchestrator{
		logger:    logger.WithOperation("answer"),
		router:    router,
		synth:     synth,
		metrics:   metrics,
		agents:    bySource,
		admission: newAdmission(cfg.MaxConcurrent, cfg.Admission),
		config:    cfg,
	}
}

// Agent returns the enabled agent for src.
func (o *Orchestrator) Agent(src domain.Source) (domain.Agent, bool) {
	a, ok := o.agents[src]
	return a, ok
}

// Capabilities describes the enabled agents in source order.
func (o *Orchestrator) Capabilities() []domain.Capabilities {
	var out []domain.Capabilities
	for _, src := range []domain.Source{domain.SourceAnalytical, domain.SourceSemantic} {
		if a, ok := o.agents[src]; ok {
			out = append(out, a.Capabilities())
		}
	}
	return out
}

// tracker enforces the request lifecycle.
type tracker struct {
	logger *observability.Logger
	state  domain.State
}

func (t *tracker) to(next domain.State) {
	if !t.state.CanTransition(next) {
		t.logger.Error().Str("from", string(t.state)).Str("to", string(next)).Msg("Illegal state transition")
		return
	}
	t.logger.Debug().Str("from", string(t.state)).Str("to", string(next)).Msg("State transition")
	t.state = next
}

// Answer runs one question to a terminal state. It never returns an error:
// every outcome, including rejection, is carried in the response.
func (o *Orchestrator) Answer(ctx context.Context, query string, opts Options) *domain.OrchestratedResponse {
	start := time.Now()
	requestID := uuid.NewString()
	ctx = observability.ContextWithTraceID(ctx, requestID)
	logger := o.logger.WithContext(ctx)

	resp := &domain.OrchestratedResponse{RequestID: requestID, Query: query, State: domain.StateReceived}
	tr := &tracker{logger: logger, state: domain.StateReceived}
	defer func() {
		resp.State = tr.state
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		o.metrics.ObserveRequest(string(resp.State), time.Since(start))
		logger.Info().
			Str("state", string(resp.State)).
			Str("error_kind", string(resp.ErrorKind)).
			Int64("processing_time_ms", resp.ProcessingTimeMs).
			Msg("Request finished")
	}()

	normalized, err := domain.ValidateQuery(query, o.config.QueryCeiling)
	if err != nil {
		msg := err.Error()
		var de *domain.DomainError
		if errors.As(err, &de) {
			msg = de.Message
		}
		o.reject(tr, resp, domain.ErrorKindInvalidQuery, msg)
		return resp
	}
	resp.Query = normalized
	params := opts.resolve(o.config)

	ctx, cancel := context.WithTimeout(ctx, params.deadline)
	defer cancel()

	release, ok := o.admission.acquire(ctx)
	if !ok {
		o.metrics.ObserveRejected()
		logger.Warn().Msg("Request rejected by admission control")
		o.reject(tr, resp, domain.ErrorKindOverloaded, "too many concurrent requests")
		return resp
	}
	defer release()
	defer o.metrics.TrackInFlight()()

	decision := o.router.Route(ctx, normalized)
	resp.Routing = &decision
	tr.to(domain.StateRouted)

	tr.to(domain.StateDispatching)
	sources := decision.Kind.Agents()
	results := o.dispatch(ctx, logger, decision, normalized, params, sources)
	tr.to(domain.StateAwaiting)

	in := synthesizer.Input{Query: normalized, Routing: decision}
	for i, src := range sources {
		r := results[i]
		o.metrics.ObserveAgent(src.Label(), outcome(r), time.Duration(r.LatencyMs)*time.Millisecond)
		switch src {
		case domain.SourceAnalytical:
			in.Analytical = &r
		case domain.SourceSemantic:
			in.Semantic = &r
		}
	}
	resp.AnalyticalResult, resp.SemanticResult = in.Analytical, in.Semantic

	tr.to(domain.StateSynthesizing)
	out := o.synth.Synthesize(ctx, in)
	resp.Answer = out.Answer
	resp.ErrorKind = out.ErrorKind
	resp.ErrorMessage = out.ErrorMessage
	resp.Success = out.State != domain.StateFailed
	tr.to(out.State)
	return resp
}

func (o *Orchestrator) reject(tr *tracker, resp *domain.OrchestratedResponse, kind domain.ErrorKind, msg string) {
	resp.Answer = synthesizer.FailureMessage(kind)
	resp.ErrorKind = kind
	resp.ErrorMessage = msg
	tr.to(domain.StateRejected)
}

type slotResult struct {
	index  int
	result domain.AgentResult
}

// dispatch runs one task per source concurrently and returns results in
// source order. Slots still empty when ctx is done are filled with TIMEOUT;
// stragglers keep running until they observe the cancellation but are not
// waited for.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	logger *observability.Logger,
	decision domain.RoutingDecision,
	query string,
	params resolved,
	sources []domain.Source,
) []domain.AgentResult {
	results := make([]domain.AgentResult, len(sources))
	filled := make([]bool, len(sources))

	if ctx.Err() != nil {
		for i, src := range sources {
			results[i] = timeoutResult(src)
		}
		return results
	}

	ch := make(chan slotResult, len(sources))
	pending := 0
	for i, src := range sources {
		agent, ok := o.agents[src]
		if !ok {
			results[i] = domain.FailureResult(src, domain.ErrorKindDependencyUnavailable, fmt.Sprintf("%s agent is disabled", src.Label()))
			filled[i] = true
			continue
		}
		task := domain.Task{
			Query:           decision.SubqueryFor(src, query),
			Filter:          decision.FilterFor(src),
			Limit:           params.maxResults,
			MinScore:        params.minScore,
			IncludeMetadata: params.includeMetadata,
		}
		pending++
		go o.run(ctx, logger, i, src, agent, task, ch)
	}

wait:
	for pending > 0 {
		select {
		case sr := <-ch:
			results[sr.index] = sr.result
			filled[sr.index] = true
			pending--
		case <-ctx.Done():
			break wait
		}
	}

	for i, src := range sources {
		if !filled[i] {
			logger.Warn().Str("source", src.Label()).Msg("Agent did not finish before the deadline")
			results[i] = timeoutResult(src)
		}
	}
	return results
}

func (o *Orchestrator) run(
	ctx context.Context,
	logger *observability.Logger,
	index int,
	src domain.Source,
	agent domain.Agent,
	task domain.Task,
	ch chan<- slotResult,
) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Str("source", src.Label()).Interface("panic", p).Msg("Agent panicked")
			r := domain.FailureResult(src, domain.ErrorKindAgentInternal, "agent failed unexpectedly")
			r.LatencyMs = time.Since(start).Milliseconds()
			ch <- slotResult{index: index, result: r}
		}
	}()

	r := agent.Run(ctx, task)
	r.Source = src
	if r.Rows == nil {
		r.Rows = []domain.Row{}
	}
	if r.Diagnostics == nil {
		r.Diagnostics = make(map[string]string)
	}
	if r.LatencyMs == 0 {
		r.LatencyMs = time.Since(start).Milliseconds()
	}
	ch <- slotResult{index: index, result: r}
}

func timeoutResult(src domain.Source) domain.AgentResult {
	return domain.FailureResult(src, domain.ErrorKindTimeout, "deadline exceeded before the agent finished")
}

func outcome(r domain.AgentResult) string {
	if r.OK {
		return "ok"
	}
	return string(r.ErrorKind)
}
