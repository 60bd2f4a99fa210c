package orchestrator

import "time"

// Option bounds.
const (
	MinMaxResults = 1
	MaxMaxResults = 100
	MaxDeadline   = 120 * time.Second
)

// Options tunes a single request. Zero values select the configured
// defaults, except that an explicit zero deadline means "already expired".
type Options struct {
	// MaxResults caps semantic hits per request, 1..100.
	MaxResults int
	// MinScore is the semantic similarity threshold, 0..1. Nil uses the default.
	MinScore *float64
	// Deadline bounds the whole request, 0..120s. Nil uses the default.
	Deadline *time.Duration
	// IncludeMetadata adds tags, description and publish time to semantic rows.
	IncludeMetadata bool
}

// WithDeadline returns a copy of o with the deadline set.
func (o Options) WithDeadline(d time.Duration) Options {
	o.Deadline = &d
	return o
}

// WithMinScore returns a copy of o with the score threshold set.
func (o Options) WithMinScore(s float64) Options {
	o.MinScore = &s
	return o
}

type resolved struct {
	maxResults      int
	minScore        float64
	deadline        time.Duration
	includeMetadata bool
}

// resolve clamps out-of-range values to the configured defaults.
func (o Options) resolve(cfg Config) resolved {
	r := resolved{
		maxResults:      cfg.DefaultMaxResults,
		minScore:        cfg.DefaultMinScore,
		deadline:        cfg.DefaultDeadline,
		includeMetadata: o.IncludeMetadata,
	}
	if o.MaxResults >= MinMaxResults && o.MaxResults <= MaxMaxResults {
		r.maxResults = o.MaxResults
	}
	if o.MinScore != nil && *o.MinScore >= 0 && *o.MinScore <= 1 {
		r.minScore = *o.MinScore
	}
	if o.Deadline != nil && *o.Deadline >= 0 && *o.Deadline <= MaxDeadline {
		r.deadline = *o.Deadline
	}
	return r
}
