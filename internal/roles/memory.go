package roles

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps grants in process for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]map[string]bool)}
}

func (s *MemoryStore) Grant(_ context.Context, requesterID, role, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[requesterID] == nil {
		s.grants[requesterID] = make(map[string]bool)
	}
	s.grants[requesterID][strings.ToLower(role)] = true
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, requesterID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[requesterID], strings.ToLower(role))
	return nil
}

func (s *MemoryStore) HasRole(_ context.Context, requesterID, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[requesterID][strings.ToLower(role)], nil
}
