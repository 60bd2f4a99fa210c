package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/trendscope/internal/domain"
)

func TestHealth(t *testing.T) {
	down := errors.New("connection refused")
	agent := func(src domain.Source, err error) *stubAgent {
		a := answering(src, "x")
		a.pingErr = err
		return a
	}

	tests := []struct {
		name          string
		agents        []domain.Agent
		wantStatus    string
		wantAvailable []string
		wantDepsOK    bool
		wantDeps      map[string]bool
	}{
		{
			name:          "all up",
			agents:        []domain.Agent{agent(domain.SourceAnalytical, nil), agent(domain.SourceSemantic, nil)},
			wantStatus:    StatusHealthy,
			wantAvailable: []string{"analytical", "semantic"},
			wantDepsOK:    true,
			wantDeps:      map[string]bool{"analytical": true, "semantic": true},
		},
		{
			name:          "index down",
			agents:        []domain.Agent{agent(domain.SourceAnalytical, nil), agent(domain.SourceSemantic, down)},
			wantStatus:    StatusDegraded,
			wantAvailable: []string{"analytical"},
			wantDeps:      map[string]bool{"analytical": true, "semantic": false},
		},
		{
			name:          "everything down",
			agents:        []domain.Agent{agent(domain.SourceAnalytical, down), agent(domain.SourceSemantic, down)},
			wantStatus:    StatusUnhealthy,
			wantAvailable: []string{},
			wantDeps:      map[string]bool{"analytical": false, "semantic": false},
		},
		{
			name:          "single enabled agent",
			agents:        []domain.Agent{agent(domain.SourceSemantic, nil)},
			wantStatus:    StatusHealthy,
			wantAvailable: []string{"semantic"},
			wantDepsOK:    true,
			wantDeps:      map[string]bool{"semantic": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(&stubRouter{}, tt.agents...)

			report := o.Health(context.Background())

			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantAvailable, report.AgentsAvailable)
			assert.Equal(t, tt.wantDepsOK, report.DependenciesOK)
			assert.Equal(t, tt.wantDeps, report.Dependencies)
		})
	}
}

func TestHealth_NoAgentsIsUnhealthy(t *testing.T) {
	report := newOrchestrator(&stubRouter{}).Health(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, report.DependenciesOK)
	assert.Empty(t, report.Dependencies)
}
