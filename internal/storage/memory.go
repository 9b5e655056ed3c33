package storage

import (
	"context"
	"sort"
	"sync"

	"arbiter/internal/assessment"
	id "arbiter/pkg/domain"
)

// InMemoryArchive keeps assessments in process memory. It backs dev mode and
// tests; production deployments use the Postgres archive.
type InMemoryArchive struct {
	mu      sync.RWMutex
	byID    map[string]assessment.RiskAssessment
	subject map[string][]string
}

func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{
		byID:    make(map[string]assessment.RiskAssessment),
		subject: make(map[string][]string),
	}
}

func (s *InMemoryArchive) Save(_ context.Context, a *assessment.RiskAssessment) error {
	key := a.RequestID.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[key]; !exists {
		sub := a.SubjectID.String()
		s.subject[sub] = append(s.subject[sub], key)
	}
	s.byID[key] = *a
	return nil
}

func (s *InMemoryArchive) Get(_ context.Context, requestID id.RequestID) (*assessment.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[requestID.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryArchive) ListBySubject(_ context.Context, subjectID id.SubjectID, limit int) ([]*assessment.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.subject[subjectID.String()]
	out := make([]*assessment.RiskAssessment, 0, len(keys))
	for _, key := range keys {
		a := s.byID[key]
		out = append(out, &a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
