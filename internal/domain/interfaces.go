package domain

import "context"

// Task is the unit of work handed to an agent.
type Task struct {
	Query           string
	Filter          *Filter
	Limit           int
	MinScore        float64
	IncludeMetadata bool
}

// Agent answers one sub-query. Run never returns an error: every failure is
// carried in the AgentResult.
type Agent interface {
	// Source identifies the agent in results and responses
	Source() Source

	// Run executes the task, honoring ctx cancellation at every dependency call
	Run(ctx context.Context, task Task) AgentResult

	// Capabilities describes the agent for diagnostics
	Capabilities() Capabilities

	// Ping checks that the agent's dependencies are reachable
	Ping(ctx context.Context) error
}
