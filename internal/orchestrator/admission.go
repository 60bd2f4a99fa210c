package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Admission modes.
const (
	AdmissionReject = "reject"
	AdmissionBlock  = "block"
)

// admission bounds the number of requests in flight.
type admission struct {
	sem   *semaphore.Weighted
	block bool
}

func newAdmission(limit int, mode string) *admission {
	if limit <= 0 {
		return &admission{}
	}
	return &admission{sem: semaphore.NewWeighted(int64(limit)), block: mode == AdmissionBlock}
}

// acquire takes a slot. In reject mode it fails at once when none is free;
// in block mode it waits until ctx is done.
func (a *admission) acquire(ctx context.Context) (release func(), ok bool) {
	if a.sem == nil {
		return func() {}, true
	}
	if a.sem.TryAcquire(1) {
		return func() { a.sem.Release(1) }, true
	}
	if !a.block {
		return nil, false
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	return func() { a.sem.Release(1) }, true
}
