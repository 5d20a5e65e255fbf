package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"idserver/internal/credentials/sybil"
	"idserver/internal/identity"
	"idserver/internal/platform/postgres"
	"idserver/internal/registry/models"
	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// PostgresStore persists registrations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, v *models.UserVerification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_verifications
			(id, uuid_legacy, uuid_v2, session_id, idv_provider, provider_session_ref, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(v.ID), v.UUIDLegacy, v.UUIDV2, uuid.UUID(v.SessionID),
		string(v.Provider), v.ProviderSessionRef, v.IssuedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, fps sybil.Fingerprints, since time.Time, excluding id.SessionID) (*models.UserVerification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uuid_legacy, uuid_v2, session_id, idv_provider, provider_session_ref, issued_at
		FROM user_verifications
		WHERE (uuid_legacy = $1 OR uuid_v2 = $2)
			AND issued_at >= $3
			AND session_id <> $4
		ORDER BY issued_at
		LIMIT 1`,
		nonEmpty(fps.Get(sybil.SchemeLegacy)), nonEmpty(fps.Get(sybil.SchemeGovID)), since, uuid.UUID(excluding),
	)
	var (
		v                   models.UserVerification
		verificationID, sid uuid.UUID
		provider            string
	)
	err := row.Scan(&verificationID, &v.UUIDLegacy, &v.UUIDV2, &sid, &provider, &v.ProviderSessionRef, &v.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active verification: %w", err)
	}
	v.ID = id.VerificationID(verificationID)
	v.SessionID = id.SessionID(sid)
	v.Provider = identity.Provider(provider)
	return &v, nil
}

func (s *PostgresStore) RecordCollision(ctx context.Context, meta *models.CollisionMetadata) error {
	populated, err := json.Marshal(meta.Populated)
	if err != nil {
		return fmt.Errorf("encode collision metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_collisions
			(uuid_legacy, uuid_v2, session_id, provider_session_ref, existing_verification_id, populated, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		meta.UUIDLegacy, meta.UUIDV2, uuid.UUID(meta.SessionID), meta.ProviderSessionRef,
		uuid.UUID(meta.ExistingVerificationID), populated, meta.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("record collision: %w", err)
	}
	return nil
}

// nonEmpty maps an empty fingerprint to NULL so it can never match a row.
func nonEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
