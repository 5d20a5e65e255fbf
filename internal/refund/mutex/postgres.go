package mutex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "idserver/pkg/domain"
)

// PostgresLocker stores locks in session_refund_mutexes. The conditional
// upsert either creates the row or takes over one older than the TTL, in a
// single statement. A non-positive TTL never expires a lock, as in the other
// lockers.
type PostgresLocker struct {
	db    *sql.DB
	ttl   time.Duration
	clock func() time.Time
}

func NewPostgresLocker(db *sql.DB, ttl time.Duration) *PostgresLocker {
	return &PostgresLocker{db: db, ttl: ttl, clock: time.Now}
}

func (l *PostgresLocker) Acquire(ctx context.Context, sessionID id.SessionID) error {
	now := l.clock()
	var staleBefore sql.NullTime
	if l.ttl > 0 {
		staleBefore = sql.NullTime{Time: now.Add(-l.ttl), Valid: true}
	}
	// acquired_at < NULL is never true, so no takeover without a TTL
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO session_refund_mutexes (session_id, acquired_at)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET acquired_at = EXCLUDED.acquired_at
		WHERE session_refund_mutexes.acquired_at < $3`,
		uuid.UUID(sessionID), now, staleBefore,
	)
	if err != nil {
		return fmt.Errorf("acquire refund lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire refund lock: %w", err)
	}
	if n == 0 {
		return ErrRefundInProgress
	}
	return nil
}

func (l *PostgresLocker) Release(ctx context.Context, sessionID id.SessionID) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM session_refund_mutexes WHERE session_id = $1`, uuid.UUID(sessionID)); err != nil {
		return fmt.Errorf("release refund lock: %w", err)
	}
	return nil
}
