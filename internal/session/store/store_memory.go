package store

import (
	"context"
	"sort"
	"sync"

	"idserver/internal/session/models"
	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = sentinel.ErrNotFound

// InMemoryStore keeps sessions in a map. Values are copied on the way in
// and out so callers can't mutate stored state without Save.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrConflict
	}
	if s.paymentTakenLocked(session) {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; !exists {
		return ErrNotFound
	}
	if s.paymentTakenLocked(session) {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (s *InMemoryStore) FindByProviderRef(_ context.Context, ref string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.ProviderSessionRef == ref {
			return &session, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) FindByTxHash(_ context.Context, txHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.Payment.TxHash == txHash {
			return &session, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListBySigDigest(_ context.Context, sigDigest string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		session := session
		if session.SigDigest == sigDigest {
			out = append(out, &session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// paymentTakenLocked mirrors the unique indexes on payment_tx_hash and
// paypal_order_id.
func (s *InMemoryStore) paymentTakenLocked(session *models.Session) bool {
	p := session.Payment
	if p.IsZero() {
		return false
	}
	for other, existing := range s.sessions {
		if other == session.ID {
			continue
		}
		if p.TxHash != "" && existing.Payment.TxHash == p.TxHash {
			return true
		}
		if p.PayPalOrderID != "" && existing.Payment.PayPalOrderID == p.PayPalOrderID {
			return true
		}
	}
	return false
}
