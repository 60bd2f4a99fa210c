package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trendscope"

// Metrics holds the Prometheus collectors for the query path.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RoutingTotal    *prometheus.CounterVec
	RouterFallbacks prometheus.Counter
	AgentOutcomes   *prometheus.CounterVec
	AgentLatency    *prometheus.HistogramVec
	RequestLatency  prometheus.Histogram
	InFlight        prometheus.Gauge
	Rejected        prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Requests by final state",
		}, []string{"state"}),
		RoutingTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Routing decisions by kind",
		}, []string{"kind"}),
		RouterFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "fallback_total",
			Help:      "Decisions produced by the keyword classifier",
		}),
		AgentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "outcomes_total",
			Help:      "Agent results by source and error kind (ok for success)",
		}, []string{"source", "outcome"}),
		AgentLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "latency_seconds",
			Help:      "Agent execution latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		RequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "request_latency_seconds",
			Help:      "End-to-end request latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "in_flight",
			Help:      "Requests currently admitted",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "overloaded_total",
			Help:      "Requests rejected by admission control",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code",
		}, []string{"method", "route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide collectors.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAgent records one agent outcome.
func (m *Metrics) ObserveAgent(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AgentOutcomes.WithLabelValues(source, outcome).Inc()
	m.AgentLatency.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveRequest records the final state and latency of one request.
func (m *Metrics) ObserveRequest(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(state).Inc()
	m.RequestLatency.Observe(d.Seconds())
}

// ObserveRoute records one routing decision.
func (m *Metrics) ObserveRoute(kind string, degraded bool) {
	if m == nil {
		return
	}
	m.RoutingTotal.WithLabelValues(kind).Inc()
	if degraded {
		m.RouterFallbacks.Inc()
	}
}

// ObserveRejected records a request turned away by admission control.
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// ObserveHTTP records one served HTTP request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
