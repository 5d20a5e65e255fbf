package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"idserver/internal/identity"
	"idserver/internal/platform/postgres"
	"idserver/internal/session/models"
	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, sig_digest, idv_provider, status, provider_session_ref,
	verification_failure_reason, payment_tx_hash, payment_chain_id, paypal_order_id,
	refund_tx_hash, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idv_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(session.ID), session.SigDigest, string(session.IDVProvider), string(session.Status),
		nullString(session.ProviderSessionRef), session.VerificationFailureReason,
		nullString(session.Payment.TxHash), session.Payment.ChainID, nullString(session.Payment.PayPalOrderID),
		nullString(session.RefundTxHash), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, session *models.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idv_sessions SET
			idv_provider = $2,
			status = $3,
			provider_session_ref = $4,
			verification_failure_reason = $5,
			payment_tx_hash = $6,
			payment_chain_id = $7,
			paypal_order_id = $8,
			refund_tx_hash = $9,
			updated_at = $10
		WHERE id = $1`,
		uuid.UUID(session.ID), string(session.IDVProvider), string(session.Status),
		nullString(session.ProviderSessionRef), session.VerificationFailureReason,
		nullString(session.Payment.TxHash), session.Payment.ChainID, nullString(session.Payment.PayPalOrderID),
		nullString(session.RefundTxHash), session.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM idv_sessions WHERE id = $1`, uuid.UUID(sessionID))
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) FindByProviderRef(ctx context.Context, ref string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM idv_sessions WHERE provider_session_ref = $1`, ref)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("find session by provider ref: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) FindByTxHash(ctx context.Context, txHash string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM idv_sessions WHERE payment_tx_hash = $1`, txHash)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("find session by tx hash: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListBySigDigest(ctx context.Context, sigDigest string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM idv_sessions
		WHERE sig_digest = $1
		ORDER BY created_at`, sigDigest)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session                       models.Session
		sessionID                     uuid.UUID
		provider, status              string
		ref, txHash, paypal, refundTx sql.NullString
	)
	err := row.Scan(&sessionID, &session.SigDigest, &provider, &status, &ref,
		&session.VerificationFailureReason, &txHash, &session.Payment.ChainID, &paypal,
		&refundTx, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.ID = id.SessionID(sessionID)
	session.IDVProvider = identity.Provider(provider)
	session.Status = models.Status(status)
	session.ProviderSessionRef = ref.String
	session.Payment.TxHash = txHash.String
	session.Payment.PayPalOrderID = paypal.String
	session.RefundTxHash = refundTx.String
	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
