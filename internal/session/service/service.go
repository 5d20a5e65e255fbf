package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"idserver/internal/identity"
	"idserver/internal/platform/metrics"
	"idserver/internal/session/models"
	"idserver/pkg/attrs"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
	"idserver/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Save(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByProviderRef(ctx context.Context, ref string) (*models.Session, error)
	FindByTxHash(ctx context.Context, txHash string) (*models.Session, error)
	ListBySigDigest(ctx context.Context, sigDigest string) ([]*models.Session, error)
}

// PaymentVerifier checks a payment reference before a session is marked paid.
type PaymentVerifier interface {
	Verify(ctx context.Context, payment models.Payment) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the session lifecycle outside of issuance and refunds.
type Service struct {
	sessions       Store
	payments       PaymentVerifier
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

func New(sessions Store, payments PaymentVerifier, opts ...Option) *Service {
	s := &Service{sessions: sessions, payments: payments}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a session awaiting payment.
func (s *Service) Create(ctx context.Context, req *models.CreateSessionRequest) (*models.Session, error) {
	req.Normalize()
	provider, err := req.Validate()
	if err != nil {
		return nil, err
	}

	session, err := models.NewSession(id.NewSessionID(), req.SigDigest, provider, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	s.logAudit(ctx, audit.EventSessionCreated,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(provider),
	)
	if s.metrics != nil {
		s.metrics.IncrementSessionsCreated()
	}
	return session, nil
}

func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.load(ctx, sessionID)
}

func (s *Service) ListBySigDigest(ctx context.Context, sigDigest string) ([]*models.Session, error) {
	sigDigest = strings.TrimSpace(sigDigest)
	if sigDigest == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "sigDigest is required")
	}
	sessions, err := s.sessions.ListBySigDigest(ctx, sigDigest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// MarkPaid binds a payment reference to the session and starts verification.
// A reference can pay for one session only.
func (s *Service) MarkPaid(ctx context.Context, sessionID id.SessionID, req *models.PaymentRequest) (*models.Session, error) {
	req.Normalize()
	payment, err := req.Validate()
	if err != nil {
		return nil, err
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Payment.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "Session is already associated with a payment")
	}
	if err := session.Require(models.StatusNeedsPayment); err != nil {
		return nil, err
	}
	if s.payments != nil {
		if err := s.payments.Verify(ctx, payment); err != nil {
			return nil, err
		}
	}
	if payment.TxHash != "" {
		existing, err := s.sessions.FindByTxHash(ctx, payment.TxHash)
		switch {
		case err == nil && existing.ID != session.ID:
			return nil, dErrors.New(dErrors.CodeConflict, "Transaction has already been used to pay for a session")
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check payment reference")
		}
	}

	if err := session.MarkPaid(payment, requestcontext.Now(ctx)); err != nil {
		return nil, toValidation(err)
	}
	if err := s.save(ctx, session, "Payment reference has already been used to pay for a session"); err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventSessionPaid,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(session.IDVProvider),
	)
	s.incrementTransition(session.Status)
	return session, nil
}

// AttachProviderSession links the vendor-side verification to the session.
func (s *Service) AttachProviderSession(ctx context.Context, sessionID id.SessionID, ref string) (*models.Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "providerSessionRef is required")
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.sessions.FindByProviderRef(ctx, ref)
	switch {
	case err == nil && existing.ID != session.ID:
		return nil, dErrors.New(dErrors.CodeConflict, "provider session is already attached to another session")
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check provider session")
	}

	if err := session.AttachProviderSession(ref, requestcontext.Now(ctx)); err != nil {
		return nil, toValidation(err)
	}
	if err := s.save(ctx, session, "provider session is already attached to another session"); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventProviderSessionAttached,
		"session_id", session.ID.String(),
		"provider", string(session.IDVProvider),
	)
	return session, nil
}

// FailSession is the admin override that fails an in-progress session so
// the user becomes eligible for a refund.
func (s *Service) FailSession(ctx context.Context, sessionID id.SessionID, reason string) (*models.Session, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Fail(reason, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session, ""); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventAdminSessionFailed,
		"session_id", session.ID.String(),
		"provider", string(session.IDVProvider),
		"reason", reason,
	)
	s.incrementTransition(session.Status)
	return session, nil
}

// SetProvider is the admin provider switch. The session returns to
// IN_PROGRESS with no provider reference and no failure reason.
func (s *Service) SetProvider(ctx context.Context, sessionID id.SessionID, rawProvider string) (*models.Session, error) {
	provider, err := identity.ParseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	previous := session.IDVProvider
	if err := session.ReassignProvider(provider, requestcontext.Now(ctx)); err != nil {
		return nil, toValidation(err)
	}
	if err := s.save(ctx, session, ""); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventAdminProviderReassign,
		"session_id", session.ID.String(),
		"provider", string(provider),
		"reason", "previous provider: "+string(previous),
	)
	s.incrementTransition(session.Status)
	return session, nil
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

// save persists session. conflictMsg, when set, is the client message for a
// unique-key violation.
func (s *Service) save(ctx context.Context, session *models.Session, conflictMsg string) error {
	err := s.sessions.Save(ctx, session)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrConflict) && conflictMsg != "":
		return dErrors.New(dErrors.CodeConflict, conflictMsg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
}

// toValidation surfaces model invariant violations as client errors.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}

func (s *Service) incrementTransition(status models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(status))
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
