// Package service runs the refund flow for sessions whose verification
// failed. Refunds of one session are serialized by the refund mutex and the
// session is re-read under the lock.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"idserver/internal/payments"
	"idserver/internal/platform/metrics"
	"idserver/internal/refund/mutex"
	"idserver/internal/session/models"
	"idserver/pkg/attrs"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
	"idserver/pkg/requestcontext"
)

type Store interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByTxHash(ctx context.Context, txHash string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
}

// Refunder sends the session fee back. An empty to refunds the original payer.
type Refunder interface {
	Refund(ctx context.Context, session *models.Session, to string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	sessions       Store
	locker         mutex.Locker
	refunder       Refunder
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(sessions Store, locker mutex.Locker, refunder Refunder, opts ...Option) *Service {
	s := &Service{sessions: sessions, locker: locker, refunder: refunder}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefundSession refunds a failed session to the address to. Sessions paid
// through PayPal ignore to and are refunded to the PayPal order.
func (s *Service) RefundSession(ctx context.Context, sessionID id.SessionID, to string) (*models.Session, error) {
	to = strings.TrimSpace(to)
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Payment.TxHash != "" && !payments.IsAddress(to) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must be a 42-character hex address")
	}
	if session.Payment.TxHash == "" {
		to = ""
	}
	return s.refund(ctx, session.ID, to)
}

// RefundByTxHash is the admin path: the session paid with txHash is refunded
// to the original payer.
func (s *Service) RefundByTxHash(ctx context.Context, txHash string) (*models.Session, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !models.IsTxHash(txHash) {
		return nil, dErrors.New(dErrors.CodeValidation, "txHash must be a 32-byte hex transaction hash")
	}
	session, err := s.sessions.FindByTxHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return s.refund(ctx, session.ID, "")
}

func (s *Service) refund(ctx context.Context, sessionID id.SessionID, to string) (*models.Session, error) {
	var refunded *models.Session
	err := mutex.WithLock(ctx, s.locker, sessionID, func(ctx context.Context) error {
		// a refund that completed before we took the lock is visible here
		session, err := s.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := session.Require(models.StatusVerificationFailed); err != nil {
			return err
		}
		refundTx, err := s.refunder.Refund(ctx, session, to)
		if err != nil {
			s.logAudit(ctx, audit.EventRefundFailed,
				"session_id", session.ID.String(),
				"provider", string(session.IDVProvider),
				"reason", dErrors.Message(err),
			)
			return err
		}
		if err := session.Refund(refundTx, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			// the money has moved; the operator needs the hash to reconcile
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "refund sent but session not updated",
					"session_id", session.ID.String(),
					"refund_tx_hash", refundTx,
					"error", err,
				)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
		}
		refunded = session
		return nil
	})
	s.recordOutcome(err)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventRefundIssued,
		"session_id", refunded.ID.String(),
		"subject", refunded.SigDigest,
		"provider", string(refunded.IDVProvider),
	)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(refunded.Status))
	}
	return refunded, nil
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.IncrementRefund(metrics.RefundOutcomeRefunded)
	case dErrors.HasCode(err, dErrors.CodeRefundInProgress):
		s.metrics.IncrementRefund(metrics.RefundOutcomeInProgress)
	case dErrors.HasCode(err, dErrors.CodeInvalidState), dErrors.HasCode(err, dErrors.CodeNotFound):
		s.metrics.IncrementRefund(metrics.RefundOutcomeRejected)
	default:
		s.metrics.IncrementRefund(metrics.RefundOutcomeError)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		SessionID: attrs.String(attributes, "session_id"),
		Subject:   attrs.String(attributes, "subject"),
		Action:    string(event),
		Provider:  attrs.String(attributes, "provider"),
		Reason:    attrs.String(attributes, "reason"),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.Actor(ctx),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
