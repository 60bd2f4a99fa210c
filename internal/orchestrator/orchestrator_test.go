package orchestrator

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/synthesizer"
)

type stubRouter struct {
	decision domain.RoutingDecision
	calls    atomic.Int32
}

func (r *stubRouter) Route(context.Context, string) domain.RoutingDecision {
	r.calls.Add(1)
	return r.decision
}

type stubAgent struct {
	src     domain.Source
	run     func(ctx context.Context, task domain.Task) domain.AgentResult
	pingErr error
	mu      sync.Mutex
	tasks   []domain.Task
	ctxs    []context.Context
}

func (a *stubAgent) Source() domain.Source { return a.src }

func (a *stubAgent) Run(ctx context.Context, task domain.Task) domain.AgentResult {
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.ctxs = append(a.ctxs, ctx)
	a.mu.Unlock()
	return a.run(ctx, task)
}

func (a *stubAgent) Capabilities() domain.Capabilities {
	return domain.Capabilities{Name: a.src.Label() + " agent", Source: a.src}
}

func (a *stubAgent) Ping(context.Context) error { return a.pingErr }

func (a *stubAgent) lastTask(t *testing.T) domain.Task {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.tasks)
	return a.tasks[len(a.tasks)-1]
}

func (a *stubAgent) runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

func answering(src domain.Source, answer string) *stubAgent {
	return &stubAgent{src: src, run: func(context.Context, domain.Task) domain.AgentResult {
		return domain.SuccessResult(src, answer, []domain.Row{{"answer": answer}})
	}}
}

func failing(src domain.Source, kind domain.ErrorKind) *stubAgent {
	return &stubAgent{src: src, run: func(context.Context, domain.Task) domain.AgentResult {
		return domain.FailureResult(src, kind, "boom")
	}}
}

func hybridDecision() domain.RoutingDecision {
	return domain.NewHybridDecision("top gaming channels", "counter strike videos", 0.9, "both", &domain.Filter{Category: "Gaming"})
}

func newOrchestrator(router Router, agents ...domain.Agent) *Orchestrator {
	return New(nil, router, synthesizer.New(nil, nil, synthesizer.DefaultConfig()), nil, DefaultConfig(), agents...)
}

func TestAnswer_CompositionByRoute(t *testing.T) {
	tests := []struct {
		name        string
		decision    domain.RoutingDecision
		analytical  *stubAgent
		semantic    *stubAgent
		wantState   domain.State
		wantSuccess bool
		wantKind    domain.ErrorKind
		wantAnswer  string
		wantRan     []domain.Source
	}{
		{
			name:        "analytical only",
			decision:    domain.NewAnalyticalDecision("top channels", 0.9, "ranking", nil),
			analytical:  answering(domain.SourceAnalytical, "A"),
			semantic:    answering(domain.SourceSemantic, "V"),
			wantState:   domain.StateDone,
			wantSuccess: true,
			wantAnswer:  "A",
			wantRan:     []domain.Source{domain.SourceAnalytical},
		},
		{
			name:        "semantic only",
			decision:    domain.NewSemanticDecision("cooking", 0.8, "topic", nil),
			analytical:  answering(domain.SourceAnalytical, "A"),
			semantic:    answering(domain.SourceSemantic, "V"),
			wantState:   domain.StateDone,
			wantSuccess: true,
			wantAnswer:  "V",
			wantRan:     []domain.Source{domain.SourceSemantic},
		},
		{
			name:        "hybrid both succeed",
			decision:    hybridDecision(),
			analytical:  answering(domain.SourceAnalytical, "A"),
			semantic:    answering(domain.SourceSemantic, "V"),
			wantState:   domain.StateDone,
			wantSuccess: true,
			wantAnswer:  synthesizer.Concatenate("A", "V"),
			wantRan:     []domain.Source{domain.SourceAnalytical, domain.SourceSemantic},
		},
		{
			name:        "hybrid partial",
			decision:    hybridDecision(),
			analytical:  answering(domain.SourceAnalytical, "A"),
			semantic:    failing(domain.SourceSemantic, domain.ErrorKindIndexUnavailable),
			wantState:   domain.StatePartial,
			wantSuccess: true,
			wantKind:    domain.ErrorKindIndexUnavailable,
			wantRan:     []domain.Source{domain.SourceAnalytical, domain.SourceSemantic},
		},
		{
			name:       "hybrid all fail",
			decision:   hybridDecision(),
			analytical: failing(domain.SourceAnalytical, domain.ErrorKindTranslationFailed),
			semantic:   failing(domain.SourceSemantic, domain.ErrorKindEmbeddingFailed),
			wantState:  domain.StateFailed,
			wantKind:   domain.ErrorKindTranslationFailed,
			wantRan:    []domain.Source{domain.SourceAnalytical, domain.SourceSemantic},
		},
		{
			name:        "unknown goes to semantic",
			decision:    domain.NewUnknownDecision(0.2, "unclear", nil),
			analytical:  answering(domain.SourceAnalytical, "A"),
			semantic:    answering(domain.SourceSemantic, "V"),
			wantState:   domain.StateDone,
			wantSuccess: true,
			wantAnswer:  "V",
			wantRan:     []domain.Source{domain.SourceSemantic},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(&stubRouter{decision: tt.decision}, tt.analytical, tt.semantic)

			resp := o.Answer(context.Background(), "  what is trending  ", Options{})

			assert.Equal(t, tt.wantState, resp.State)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, tt.wantKind, resp.ErrorKind)
			assert.Equal(t, "what is trending", resp.Query)
			assert.NotEmpty(t, resp.Answer)
			if tt.wantAnswer != "" {
				assert.Equal(t, tt.wantAnswer, resp.Answer)
			}
			require.NotNil(t, resp.Routing)
			assert.Equal(t, tt.decision.Kind, resp.Routing.Kind)

			var ran []domain.Source
			for _, r := range resp.Results() {
				ran = append(ran, r.Source)
			}
			assert.Equal(t, tt.wantRan, ran)
			assert.Equal(t, slices.Contains(tt.wantRan, domain.SourceAnalytical), tt.analytical.runs() == 1)
			assert.Equal(t, slices.Contains(tt.wantRan, domain.SourceSemantic), tt.semantic.runs() == 1)
		})
	}
}

func TestAnswer_TasksCarrySubqueriesAndOptions(t *testing.T) {
	analytical := answering(domain.SourceAnalytical, "A")
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: hybridDecision()}, analytical, semantic)

	resp := o.Answer(context.Background(), "top gaming channels and counter strike videos",
		Options{MaxResults: 25, IncludeMetadata: true}.WithMinScore(0))
	require.Equal(t, domain.StateDone, resp.State)

	at, st := analytical.lastTask(t), semantic.lastTask(t)
	assert.Equal(t, "top gaming channels", at.Query)
	assert.Equal(t, "counter strike videos", st.Query)
	assert.Equal(t, 25, st.Limit)
	assert.Equal(t, 0.0, st.MinScore)
	assert.True(t, st.IncludeMetadata)
	require.NotNil(t, at.Filter)
	require.NotNil(t, st.Filter)
	assert.Equal(t, "Gaming", st.Filter.Category)
	assert.NotSame(t, at.Filter, st.Filter)
}

func TestAnswer_HybridTasksCarryScopedFilters(t *testing.T) {
	analytical := answering(domain.SourceAnalytical, "A")
	semantic := answering(domain.SourceSemantic, "V")
	d := domain.NewHybridDecision("top 10 gaming channels by likes", "music videos about live concerts", 0.9, "both",
		&domain.Filter{Category: "Gaming"})
	d.ScopeFilters(&domain.Filter{Category: "Gaming"}, &domain.Filter{Category: "Music"})
	o := newOrchestrator(&stubRouter{decision: d}, analytical, semantic)

	resp := o.Answer(context.Background(), "top 10 gaming channels by likes and also find music videos about live concerts", Options{})
	require.Equal(t, domain.StateDone, resp.State)

	at, st := analytical.lastTask(t), semantic.lastTask(t)
	require.NotNil(t, at.Filter)
	require.NotNil(t, st.Filter)
	assert.Equal(t, "Gaming", at.Filter.Category)
	assert.Equal(t, "Music", st.Filter.Category)

	d.ScopeFilters(&domain.Filter{Category: "Gaming"}, nil)
	o = newOrchestrator(&stubRouter{decision: d}, analytical, semantic)
	o.Answer(context.Background(), "top 10 gaming channels by likes and also find live concerts", Options{})
	assert.Nil(t, semantic.lastTask(t).Filter, "an unscoped side runs unfiltered")
}

func TestAnswer_UnknownReceivesFullQuery(t *testing.T) {
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: domain.NewUnknownDecision(0.2, "unclear", nil)}, semantic)

	o.Answer(context.Background(), "asdf qwer zxcv", Options{})

	assert.Equal(t, "asdf qwer zxcv", semantic.lastTask(t).Query)
}

func TestAnswer_OptionDefaults(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLimit int
		wantScore float64
	}{
		{"zero values", Options{}, 10, 0.3},
		{"too many results", Options{MaxResults: 500}, 10, 0.3},
		{"negative score", Options{}.WithMinScore(-1), 10, 0.3},
		{"score above one", Options{}.WithMinScore(1.5), 10, 0.3},
		{"bounds accepted", Options{MaxResults: 100}.WithMinScore(1), 100, 1},
		{"smallest limit", Options{MaxResults: 1}, 1, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			semantic := answering(domain.SourceSemantic, "V")
			o := newOrchestrator(&stubRouter{decision: domain.NewSemanticDecision("q", 0.8, "", nil)}, semantic)

			o.Answer(context.Background(), "cooking videos", tt.opts)

			task := semantic.lastTask(t)
			assert.Equal(t, tt.wantLimit, task.Limit)
			assert.Equal(t, tt.wantScore, task.MinScore)
		})
	}
}

func TestAnswer_InvalidQuery(t *testing.T) {
	for _, q := range []string{"", "   \t\n", strings.Repeat("a", domain.DefaultQueryCeiling+1)} {
		router := &stubRouter{decision: hybridDecision()}
		analytical := answering(domain.SourceAnalytical, "A")
		semantic := answering(domain.SourceSemantic, "V")
		o := newOrchestrator(router, analytical, semantic)

		resp := o.Answer(context.Background(), q, Options{})

		assert.Equal(t, domain.StateRejected, resp.State)
		assert.Equal(t, domain.ErrorKindInvalidQuery, resp.ErrorKind)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Answer, "INVALID_QUERY")
		assert.Nil(t, resp.Routing)
		assert.Empty(t, resp.Results())
		assert.Zero(t, router.calls.Load())
		assert.Zero(t, analytical.runs()+semantic.runs())
	}
}

func TestAnswer_ZeroDeadline(t *testing.T) {
	analytical := answering(domain.SourceAnalytical, "A")
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: hybridDecision()}, analytical, semantic)

	resp := o.Answer(context.Background(), "top gaming channels and counter strike videos", Options{}.WithDeadline(0))

	assert.Equal(t, domain.StateFailed, resp.State)
	assert.False(t, resp.Success)
	assert.Equal(t, domain.ErrorKindTimeout, resp.ErrorKind)
	for _, r := range resp.Results() {
		assert.False(t, r.OK)
		assert.Equal(t, domain.ErrorKindTimeout, r.ErrorKind)
	}
	assert.Zero(t, analytical.runs()+semantic.runs())
}

func TestAnswer_SlowAgentTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	analytical := answering(domain.SourceAnalytical, "A")
	semantic := &stubAgent{src: domain.SourceSemantic, run: func(context.Context, domain.Task) domain.AgentResult {
		<-release
		return domain.SuccessResult(domain.SourceSemantic, "late", nil)
	}}
	o := newOrchestrator(&stubRouter{decision: hybridDecision()}, analytical, semantic)

	start := time.Now()
	resp := o.Answer(context.Background(), "top gaming channels and counter strike videos", Options{}.WithDeadline(100*time.Millisecond))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.StatePartial, resp.State)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.SemanticResult)
	assert.Equal(t, domain.ErrorKindTimeout, resp.SemanticResult.ErrorKind)
	assert.True(t, resp.AnalyticalResult.OK)
	assert.True(t, strings.HasPrefix(resp.Answer, "A"))
}

func TestAnswer_CooperativeAgentSeesCancellation(t *testing.T) {
	semantic := &stubAgent{src: domain.SourceSemantic, run: func(ctx context.Context, _ domain.Task) domain.AgentResult {
		<-ctx.Done()
		return domain.FailureFromError(domain.SourceSemantic, ctx.Err(), domain.ErrorKindIndexUnavailable)
	}}
	o := newOrchestrator(&stubRouter{decision: domain.NewSemanticDecision("q", 0.8, "", nil)}, semantic)

	resp := o.Answer(context.Background(), "cooking videos", Options{}.WithDeadline(50*time.Millisecond))

	assert.Equal(t, domain.StateFailed, resp.State)
	assert.Equal(t, domain.ErrorKindTimeout, resp.ErrorKind)
}

func TestAnswer_PanicBecomesAgentInternal(t *testing.T) {
	analytical := &stubAgent{src: domain.SourceAnalytical, run: func(context.Context, domain.Task) domain.AgentResult {
		panic("nil map write")
	}}
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: hybridDecision()}, analytical, semantic)

	resp := o.Answer(context.Background(), "top gaming channels and counter strike videos", Options{})

	assert.Equal(t, domain.StatePartial, resp.State)
	require.NotNil(t, resp.AnalyticalResult)
	assert.Equal(t, domain.ErrorKindAgentInternal, resp.AnalyticalResult.ErrorKind)
	assert.NotContains(t, resp.AnalyticalResult.ErrorMessage, "nil map")
	assert.NotNil(t, resp.AnalyticalResult.Rows)
}

func TestAnswer_DisabledAgent(t *testing.T) {
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: hybridDecision()}, semantic)

	resp := o.Answer(context.Background(), "top gaming channels and counter strike videos", Options{})

	assert.Equal(t, domain.StatePartial, resp.State)
	require.NotNil(t, resp.AnalyticalResult)
	assert.Equal(t, domain.ErrorKindDependencyUnavailable, resp.AnalyticalResult.ErrorKind)

	resp = newOrchestrator(&stubRouter{decision: domain.NewAnalyticalDecision("q", 0.9, "", nil)}, semantic).
		Answer(context.Background(), "top channels by views", Options{})
	assert.Equal(t, domain.StateFailed, resp.State)
	assert.Equal(t, domain.ErrorKindDependencyUnavailable, resp.ErrorKind)
}

func TestAnswer_ResultSourceIsForced(t *testing.T) {
	liar := &stubAgent{src: domain.SourceAnalytical, run: func(context.Context, domain.Task) domain.AgentResult {
		return domain.AgentResult{OK: true, AnswerText: "A", Source: domain.SourceSemantic}
	}}
	o := newOrchestrator(&stubRouter{decision: domain.NewAnalyticalDecision("q", 0.9, "", nil)}, liar)

	resp := o.Answer(context.Background(), "top channels by views", Options{})

	require.NotNil(t, resp.AnalyticalResult)
	assert.Equal(t, domain.SourceAnalytical, resp.AnalyticalResult.Source)
	assert.NotNil(t, resp.AnalyticalResult.Rows)
	assert.NotNil(t, resp.AnalyticalResult.Diagnostics)
	assert.Nil(t, resp.SemanticResult)
}

func TestAnswer_RequestIDAndTrace(t *testing.T) {
	semantic := answering(domain.SourceSemantic, "V")
	o := newOrchestrator(&stubRouter{decision: domain.NewSemanticDecision("q", 0.8, "", nil)}, semantic)

	first := o.Answer(context.Background(), "cooking videos", Options{})
	second := o.Answer(context.Background(), "cooking videos", Options{})

	_, err := uuid.Parse(first.RequestID)
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	semantic.mu.Lock()
	defer semantic.mu.Unlock()
	assert.Equal(t, first.RequestID, observability.TraceIDFromContext(semantic.ctxs[0]))
}

func blockingAgent(src domain.Source, entered chan<- struct{}, release <-chan struct{}) *stubAgent {
	return &stubAgent{src: src, run: func(ctx context.Context, _ domain.Task) domain.AgentResult {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return domain.SuccessResult(src, "done", nil)
	}}
}

func TestAnswer_AdmissionReject(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	metrics := observability.NewMetrics()
	o := New(nil, &stubRouter{decision: domain.NewSemanticDecision("q", 0.8, "", nil)},
		synthesizer.New(nil, nil, synthesizer.DefaultConfig()), metrics, cfg,
		blockingAgent(domain.SourceSemantic, entered, release))

	done := make(chan *domain.OrchestratedResponse, 1)
	go func() { done <- o.Answer(context.Background(), "cooking videos", Options{}) }()
	<-entered

	rejected := o.Answer(context.Background(), "cooking videos", Options{})
	assert.Equal(t, domain.StateRejected, rejected.State)
	assert.Equal(t, domain.ErrorKindOverloaded, rejected.ErrorKind)
	assert.Contains(t, rejected.Answer, "OVERLOADED")

	close(release)
	first := <-done
	assert.Equal(t, domain.StateDone, first.State)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Rejected))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(domain.StateDone))))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(domain.StateRejected))))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.InFlight))
}

func TestAnswer_AdmissionBlock(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.Admission = AdmissionBlock
	o := New(nil, &stubRouter{decision: domain.NewSemanticDecision("q", 0.8, "", nil)},
		synthesizer.New(nil, nil, synthesizer.DefaultConfig()), nil, cfg,
		blockingAgent(domain.SourceSemantic, entered, release))

	done := make(chan *domain.OrchestratedResponse, 1)
	go func() { done <- o.Answer(context.Background(), "cooking videos", Options{}) }()
	<-entered

	// The waiter gives up when its own deadline passes.
	timedOut := o.Answer(context.Background(), "cooking videos", Options{}.WithDeadline(50*time.Millisecond))
	assert.Equal(t, domain.StateRejected, timedOut.State)
	assert.Equal(t, domain.ErrorKindOverloaded, timedOut.ErrorKind)

	waiter := make(chan *domain.OrchestratedResponse, 1)
	go func() { waiter <- o.Answer(context.Background(), "cooking videos", Options{}) }()
	close(release)

	assert.Equal(t, domain.StateDone, (<-done).State)
	assert.Equal(t, domain.StateDone, (<-waiter).State)
}

func TestAnswer_AgentMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	o := New(nil, &stubRouter{decision: hybridDecision()},
		synthesizer.New(nil, nil, synthesizer.DefaultConfig()), metrics, DefaultConfig(),
		answering(domain.SourceAnalytical, "A"), failing(domain.SourceSemantic, domain.ErrorKindIndexUnavailable))

	o.Answer(context.Background(), "top gaming channels and counter strike videos", Options{})

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.AgentOutcomes.WithLabelValues("analytical", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.AgentOutcomes.WithLabelValues("semantic", string(domain.ErrorKindIndexUnavailable))))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(domain.StatePartial))))
}

func TestCapabilities(t *testing.T) {
	o := newOrchestrator(&stubRouter{}, answering(domain.SourceSemantic, "V"), answering(domain.SourceAnalytical, "A"))

	caps := o.Capabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, domain.SourceAnalytical, caps[0].Source)
	assert.Equal(t, domain.SourceSemantic, caps[1].Source)

	_, ok := o.Agent(domain.SourceSemantic)
	assert.True(t, ok)
	assert.Len(t, newOrchestrator(&stubRouter{}, answering(domain.SourceSemantic, "V")).Capabilities(), 1)
}
