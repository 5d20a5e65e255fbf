package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"idserver/internal/credentials/leaf"
	"idserver/internal/identity"
	"idserver/internal/nullifier"
	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// PostgresStore keeps issued credentials in nullifier_and_creds. The primary
// key on issuance_nullifier is the cross-process guard against double
// issuance.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindRecent(ctx context.Context, n string, since time.Time) (*nullifier.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT issuance_nullifier, uuid_v2, session_id, idv_provider, provider_session_ref,
			creds, signed_bundle, created_at
		FROM nullifier_and_creds
		WHERE issuance_nullifier = $1 AND created_at >= $2`, n, since)

	var (
		rec       nullifier.Record
		sessionID uuid.UUID
		provider  string
		creds     []byte
		bundle    []byte
	)
	err := row.Scan(&rec.IssuanceNullifier, &rec.UUID, &sessionID, &provider, &rec.ProviderSessionRef,
		&creds, &bundle, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find nullifier: %w", err)
	}
	rec.SessionID = id.SessionID(sessionID)
	rec.Provider = identity.Provider(provider)
	rec.SignedBundle = json.RawMessage(bundle)
	rec.Creds = &leaf.Creds{}
	if err := json.Unmarshal(creds, rec.Creds); err != nil {
		return nil, fmt.Errorf("decode stored creds: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *nullifier.Record, staleBefore time.Time) error {
	creds, err := json.Marshal(rec.Creds)
	if err != nil {
		return fmt.Errorf("encode creds: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO nullifier_and_creds
			(issuance_nullifier, uuid_v2, session_id, idv_provider, provider_session_ref,
			 creds, signed_bundle, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (issuance_nullifier) DO UPDATE SET
			uuid_v2 = EXCLUDED.uuid_v2,
			session_id = EXCLUDED.session_id,
			idv_provider = EXCLUDED.idv_provider,
			provider_session_ref = EXCLUDED.provider_session_ref,
			creds = EXCLUDED.creds,
			signed_bundle = EXCLUDED.signed_bundle,
			created_at = EXCLUDED.created_at
		WHERE nullifier_and_creds.created_at <= $9`,
		rec.IssuanceNullifier, rec.UUID, uuid.UUID(rec.SessionID), string(rec.Provider),
		rec.ProviderSessionRef, creds, []byte(rec.SignedBundle), rec.CreatedAt, staleBefore,
	)
	if err != nil {
		return fmt.Errorf("insert nullifier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert nullifier: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
