package store

import (
	"context"
	"sync"
)

// InMemory keeps references in process memory. References are idempotency
// records, not cache entries, so they never expire.
type InMemory struct {
	mu   sync.RWMutex
	refs map[string]Reference
}

// NewInMemory creates an empty in-memory reference store.
func NewInMemory() *InMemory {
	return &InMemory{refs: make(map[string]Reference)}
}

func (s *InMemory) Save(_ context.Context, ref Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref.RequestID] = ref
	return nil
}

func (s *InMemory) Find(_ context.Context, requestID string) (Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref, ok := s.refs[requestID]; ok {
		return ref, nil
	}
	return Reference{}, ErrNotFound
}
