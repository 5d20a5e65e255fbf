package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "idserver/pkg/platform/audit"
)

// Store keeps audit events in the audit_events table. The Kafka producer,
// when configured, receives the same events as a sink.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	// category is always derived from the action
	category := audit.AuditEvent(event.Action).Category()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, category, action, session_id, subject, idv_provider, decision, reason, request_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), string(category), event.Action, event.SessionID, event.Subject,
		event.Provider, event.Decision, event.Reason, event.RequestID, event.ActorID, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, action, session_id, subject, idv_provider, decision, reason, request_id, actor_id, created_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
		)
		if err := rows.Scan(&category, &e.Action, &e.SessionID, &e.Subject, &e.Provider,
			&e.Decision, &e.Reason, &e.RequestID, &e.ActorID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
