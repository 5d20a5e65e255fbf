package store

import (
	"context"
	"sync"
	"time"

	"idserver/internal/credentials/sybil"
	"idserver/internal/registry/models"
	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// ErrNotFound is returned when no live registration matches.
var ErrNotFound = sentinel.ErrNotFound

type InMemoryStore struct {
	mu         sync.RWMutex
	entries    []models.UserVerification
	collisions []models.CollisionMetadata
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, v *models.UserVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == v.ID {
			return sentinel.ErrConflict
		}
	}
	s.entries = append(s.entries, *v)
	return nil
}

// FindActive returns the oldest entry matching any fingerprint, issued at or
// after since, that belongs to a different session.
func (s *InMemoryStore) FindActive(_ context.Context, fps sybil.Fingerprints, since time.Time, excluding id.SessionID) (*models.UserVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.UserVerification
	for i := range s.entries {
		e := s.entries[i]
		if e.SessionID == excluding || e.IssuedAt.Before(since) || !e.Matches(fps) {
			continue
		}
		if found == nil || e.IssuedAt.Before(found.IssuedAt) {
			found = &e
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) RecordCollision(_ context.Context, meta *models.CollisionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collisions = append(s.collisions, *meta)
	return nil
}

// Collisions returns the recorded collision trail.
func (s *InMemoryStore) Collisions() []models.CollisionMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CollisionMetadata{}, s.collisions...)
}
