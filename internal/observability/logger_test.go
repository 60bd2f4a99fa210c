package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "trendscope-test"})

	ctx := ContextWithTraceID(context.Background(), "req-123")
	logger.WithContext(ctx).WithAgent("semantic").Info().Int("rows", 3).Msg("search complete")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trendscope-test", entry["service"])
	assert.Equal(t, "req-123", entry["trace_id"])
	assert.Equal(t, "semantic", entry["agent"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, "search complete", entry["message"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestTraceIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()
	m.ObserveAgent("SEMANTIC", "ok", 20*time.Millisecond)
	m.ObserveAgent("SEMANTIC", "INDEX_UNAVAILABLE", time.Millisecond)
	m.ObserveRequest("PARTIAL", 30*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentOutcomes.WithLabelValues("SEMANTIC", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("PARTIAL")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRequest("DONE", time.Second) })
}
