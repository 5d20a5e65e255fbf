// Package memory keeps audit events in process, for tests and for running
// without a database.
package memory

import (
	"context"
	"sync"

	audit "idserver/pkg/platform/audit"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	bySession map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySession: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySession[event.SessionID] = append(s.bySession[event.SessionID], event)
	return nil
}

// ListBySession returns a copy in append order.
func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.bySession[sessionID]...), nil
}
