// Package mutex serializes refunds per session. Holding the lock is having a
// row (or key) for the session; a lock older than the TTL is treated as
// orphaned and may be taken over.
package mutex

import (
	"context"
	"fmt"

	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

// ErrRefundInProgress is returned by Acquire when another holder owns the lock.
var ErrRefundInProgress = dErrors.New(dErrors.CodeRefundInProgress, "Refund already in progress")

// Locker is a per-session mutual exclusion backend.
type Locker interface {
	Acquire(ctx context.Context, sessionID id.SessionID) error
	Release(ctx context.Context, sessionID id.SessionID) error
}

// WithLock runs fn while holding the session's lock. The lock is released on
// every exit path, including a panic in fn.
func WithLock(ctx context.Context, l Locker, sessionID id.SessionID, fn func(ctx context.Context) error) (err error) {
	if err := l.Acquire(ctx, sessionID); err != nil {
		return err
	}
	defer func() {
		// release even when the request context is already cancelled
		if relErr := l.Release(context.WithoutCancel(ctx), sessionID); relErr != nil && err == nil {
			err = fmt.Errorf("release refund lock: %w", relErr)
		}
	}()
	return fn(ctx)
}
