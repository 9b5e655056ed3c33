package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process ledger for dev mode and tests. It honors the same
// idempotency contract as the real chain gateway and can be seeded with
// settlement history for the history factor. FailNextSubmits scripts
// transient outages so retry behavior is testable.
type Memory struct {
	mu          sync.RWMutex
	refs        map[string]Reference
	settlements map[string][]Settlement

	failRemaining int
	failWith      error

	// Latency, when set, delays each call to mimic a remote ledger.
	Latency time.Duration
}

// NewMemory builds an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{
		refs:        make(map[string]Reference),
		settlements: make(map[string][]Settlement),
	}
}

// FailNextSubmits makes the next n Submit calls fail with err.
func (m *Memory) FailNextSubmits(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRemaining = n
	m.failWith = err
}

// SeedSettlements loads settlement history for a subject.
func (m *Memory) SeedSettlements(subjectID string, settlements []Settlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[subjectID] = append(m.settlements[subjectID], settlements...)
}

// SubmitCount reports how many distinct requests have been recorded.
func (m *Memory) SubmitCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}

func (m *Memory) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Submit(ctx context.Context, sub Submission) (Reference, error) {
	if err := m.wait(ctx); err != nil {
		return Reference{}, ErrTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRemaining > 0 {
		m.failRemaining--
		return Reference{}, m.failWith
	}
	if ref, ok := m.refs[sub.RequestID]; ok {
		return ref, nil
	}
	ref := Reference{
		Ref:        sub.Hash(),
		RequestID:  sub.RequestID,
		RecordedAt: time.Now().UTC(),
	}
	m.refs[sub.RequestID] = ref
	return ref, nil
}

func (m *Memory) Lookup(ctx context.Context, requestID string) (Reference, error) {
	if err := m.wait(ctx); err != nil {
		return Reference{}, ErrTimeout
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ref, ok := m.refs[requestID]; ok {
		return ref, nil
	}
	return Reference{}, ErrNotFound
}

func (m *Memory) Settlements(ctx context.Context, subjectID string) ([]Settlement, error) {
	if err := m.wait(ctx); err != nil {
		return nil, ErrTimeout
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Settlement, len(m.settlements[subjectID]))
	copy(out, m.settlements[subjectID])
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.After(out[j].SettledAt) })
	return out, nil
}
