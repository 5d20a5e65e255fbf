package store

import (
	"context"
	"sync"
	"time"

	"idserver/internal/nullifier"
	"idserver/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]nullifier.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]nullifier.Record)}
}

func (s *InMemoryStore) FindRecent(_ context.Context, n string, since time.Time) (*nullifier.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[n]
	if !ok || rec.CreatedAt.Before(since) {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *InMemoryStore) Insert(_ context.Context, rec *nullifier.Record, staleBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.IssuanceNullifier]; ok && existing.CreatedAt.After(staleBefore) {
		return sentinel.ErrConflict
	}
	s.records[rec.IssuanceNullifier] = *rec
	return nil
}
