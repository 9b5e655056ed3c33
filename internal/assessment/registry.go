package assessment

import (
	"context"
	"sync"
)

// inflight tracks one assessment run in progress. Waiters block on done;
// the owner fills result and err before closing it.
type inflight struct {
	done   chan struct{}
	result *RiskAssessment
	err    error
}

// inflightRegistry collapses concurrent submissions that share a request ID
// onto a single run. The first caller owns the run, later callers attach to
// it and receive the owner's outcome.
type inflightRegistry struct {
	mu   sync.Mutex
	runs map[string]*inflight
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{runs: make(map[string]*inflight)}
}

// begin registers interest in requestID. The second return is true when the
// caller owns the run and must call finish exactly once.
func (r *inflightRegistry) begin(requestID string) (*inflight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[requestID]; ok {
		return run, false
	}
	run := &inflight{done: make(chan struct{})}
	r.runs[requestID] = run
	return run, true
}

// finish publishes the owner's outcome and releases the slot so a later
// submission with the same ID starts fresh.
func (r *inflightRegistry) finish(requestID string, run *inflight, result *RiskAssessment, err error) {
	run.result = result
	run.err = err
	r.mu.Lock()
	delete(r.runs, requestID)
	r.mu.Unlock()
	close(run.done)
}

// wait blocks until the owner finishes or the waiter's own context ends.
// Abandoning a wait does not stop the owner's run.
func (r *inflightRegistry) wait(ctx context.Context, run *inflight) (*RiskAssessment, error) {
	select {
	case <-run.done:
		return run.result, run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
