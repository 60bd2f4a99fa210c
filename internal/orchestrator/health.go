package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const pingTimeout = 3 * time.Second

// HealthReport summarizes agent dependency reachability. DependenciesOK is
// true only when every enabled agent answered its ping.
type HealthReport struct {
	Status          string          `json:"status"`
	AgentsAvailable []string        `json:"agents_available"`
	DependenciesOK  bool            `json:"dependencies_ok"`
	Dependencies    map[string]bool `json:"dependencies"`
}

// Health pings every enabled agent concurrently. The report is healthy when
// all of them answer, degraded when some do and unhealthy when none do.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	sources := []domain.Source{domain.SourceAnalytical, domain.SourceSemantic}
	ok := make([]bool, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		agent, enabled := o.agents[src]
		if !enabled {
			continue
		}
		wg.Add(1)
		go func(i int, agent domain.Agent) {
			defer wg.Done()
			if err := agent.Ping(ctx); err != nil {
				o.logger.WithContext(ctx).Warn().Err(err).Str("source", agent.Source().Label()).Msg("Agent dependency unreachable")
				return
			}
			ok[i] = true
		}(i, agent)
	}
	wg.Wait()

	report := HealthReport{AgentsAvailable: []string{}, Dependencies: make(map[string]bool)}
	enabled := 0
	for i, src := range sources {
		if _, on := o.agents[src]; !on {
			continue
		}
		enabled++
		report.Dependencies[src.Label()] = ok[i]
		if ok[i] {
			report.AgentsAvailable = append(report.AgentsAvailable, src.Label())
		}
	}

	report.DependenciesOK = enabled > 0 && len(report.AgentsAvailable) == enabled
	switch {
	case report.DependenciesOK:
		report.Status = StatusHealthy
	case len(report.AgentsAvailable) > 0:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}
	return report
}
