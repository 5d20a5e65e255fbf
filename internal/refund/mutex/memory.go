package mutex

import (
	"context"
	"sync"
	"time"

	id "idserver/pkg/domain"
)

// InMemoryLocker is a single-process Locker.
type InMemoryLocker struct {
	mu    sync.Mutex
	held  map[id.SessionID]time.Time
	ttl   time.Duration
	clock func() time.Time
}

func NewInMemoryLocker(ttl time.Duration) *InMemoryLocker {
	return &InMemoryLocker{held: make(map[id.SessionID]time.Time), ttl: ttl, clock: time.Now}
}

func (l *InMemoryLocker) Acquire(_ context.Context, sessionID id.SessionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if acquiredAt, ok := l.held[sessionID]; ok && (l.ttl <= 0 || now.Sub(acquiredAt) < l.ttl) {
		return ErrRefundInProgress
	}
	l.held[sessionID] = now
	return nil
}

func (l *InMemoryLocker) Release(_ context.Context, sessionID id.SessionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sessionID)
	return nil
}

// Held reports whether a lock exists for the session.
func (l *InMemoryLocker) Held(sessionID id.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[sessionID]
	return ok
}
