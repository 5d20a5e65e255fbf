// Package service is the issuance orchestrator. It turns an approved vendor
// verification into a signed credential exactly once per identity, and
// replays the signed bundle to a holder who repeats the same nullifier
// within the replay window.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"idserver/internal/credentials/leaf"
	"idserver/internal/credentials/sybil"
	"idserver/internal/identity"
	"idserver/internal/issuance/models"
	"idserver/internal/nullifier"
	"idserver/internal/platform/metrics"
	"idserver/internal/providers"
	registry "idserver/internal/registry/models"
	sessions "idserver/internal/session/models"
	"idserver/internal/signer"
	"idserver/pkg/attrs"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
	"idserver/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Signer

const defaultDedupMonths = 11

type SessionStore interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*sessions.Session, error)
	Save(ctx context.Context, session *sessions.Session) error
}

type RegistryStore interface {
	Insert(ctx context.Context, v *registry.UserVerification) error
	FindActive(ctx context.Context, fps sybil.Fingerprints, since time.Time, excluding id.SessionID) (*registry.UserVerification, error)
	RecordCollision(ctx context.Context, meta *registry.CollisionMetadata) error
}

type ReplayCache interface {
	Lookup(ctx context.Context, n id.IssuanceNullifier, now time.Time) (*nullifier.Record, error)
	Record(ctx context.Context, rec *nullifier.Record, now time.Time) (*nullifier.Record, bool, error)
}

type Adapters interface {
	Get(p identity.Provider) (providers.Adapter, error)
}

type Signer interface {
	Issue(ctx context.Context, nullifier, countryCode, leafHash string) (signer.SignedBundle, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	sessions       SessionStore
	registry       RegistryStore
	cache          ReplayCache
	adapters       Adapters
	signer         Signer
	dedupMonths    int
	dummy          bool
	inflight       singleflight.Group
	tracer         trace.Tracer
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

// WithDedupWindow sets how many months a registration blocks a second one.
func WithDedupWindow(months int) Option {
	return func(s *Service) {
		if months > 0 {
			s.dedupMonths = months
		}
	}
}

// WithDummyCredentials makes every request sign the fixed test identity
// without touching sessions, vendors or the registry. Development only.
func WithDummyCredentials() Option {
	return func(s *Service) {
		s.dummy = true
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(sessionStore SessionStore, registryStore RegistryStore, cache ReplayCache, adapters Adapters, issuer Signer, opts ...Option) *Service {
	s := &Service{
		sessions:    sessionStore,
		registry:    registryStore,
		cache:       cache,
		adapters:    adapters,
		signer:      issuer,
		dedupMonths: defaultDedupMonths,
		tracer:      otel.Tracer("idserver/issuance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs credentials for the verified identity behind sessionID, keyed
// by the holder's issuance nullifier. Concurrent calls for the same
// nullifier and session share one execution.
func (s *Service) Issue(ctx context.Context, sessionID id.SessionID, rawNullifier string) (*models.Issuance, error) {
	n, err := id.ParseIssuanceNullifier(rawNullifier)
	if err != nil {
		return nil, err
	}
	if s.dummy {
		return s.issueDummy(ctx, n)
	}
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "No sessionId specified")
	}

	key := n.String() + "/" + sessionID.String()
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.issue(ctx, sessionID, n)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Issuance), nil
}

func (s *Service) issue(ctx context.Context, sessionID id.SessionID, n id.IssuanceNullifier) (_ *models.Issuance, err error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Issue", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.Message(err))
		}
		span.End()
	}()

	now := requestcontext.Now(ctx)
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("idv.provider", string(session.IDVProvider)))

	if session.Status == sessions.StatusVerificationFailed {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeRejected)
		return nil, dErrors.New(dErrors.CodeVerificationFailed,
			"Verification failed. Reason(s): "+session.VerificationFailureReason)
	}

	replayed, err := s.lookupReplay(ctx, session, n, now)
	if err != nil || replayed != nil {
		return replayed, err
	}

	if err := session.Require(sessions.StatusInProgress); err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeRejected)
		return nil, err
	}
	if session.ProviderSessionRef == "" {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeRejected)
		return nil, dErrors.New(dErrors.CodeValidation, "Session has no idv session attached")
	}

	adapter, err := s.adapters.Get(session.IDVProvider)
	if err != nil {
		return nil, err
	}
	fields, err := s.fetch(ctx, adapter, session)
	if err != nil {
		return nil, err
	}

	fps := sybil.Derive(sybil.InputsFrom(*fields))
	if err := s.checkSybil(ctx, session, fields, fps, now); err != nil {
		return nil, err
	}

	creds, err := leaf.Build(*fields)
	if err != nil {
		var unsupported *leaf.UnsupportedCountryError
		if errors.As(err, &unsupported) {
			return nil, s.failVerification(ctx, session, unsupported.Error(), metrics.OutcomeVerificationFailed)
		}
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build credentials")
	}

	entry := registry.NewUserVerification(fps, session.ID, session.IDVProvider, session.ProviderSessionRef, now)
	if err := s.registry.Insert(ctx, entry); err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
	}

	bundle, err := s.sign(ctx, n, creds)
	if err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return nil, err
	}

	result := &models.Issuance{SessionID: session.ID, Bundle: bundle, Creds: creds}
	stored, inserted, err := s.cache.Record(ctx, &nullifier.Record{
		IssuanceNullifier:  n.String(),
		UUID:               fps.Get(sybil.SchemeGovID),
		SessionID:          session.ID,
		Provider:           session.IDVProvider,
		ProviderSessionRef: session.ProviderSessionRef,
		Creds:              creds,
		SignedBundle:       bundle,
	}, now)
	if err != nil {
		// the session stays IN_PROGRESS so a retry signs again
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issuance nullifier")
	}
	if !inserted {
		result.Bundle = stored.SignedBundle
		result.Creds = stored.Creds
	}

	if err := session.Issue(now); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	if err := adapter.DeleteRemoteSession(ctx, session.ProviderSessionRef); err != nil {
		s.warn(ctx, "failed to delete vendor session",
			"session_id", session.ID.String(),
			"provider", string(session.IDVProvider),
			"error", err,
		)
	}
	s.logAudit(ctx, audit.EventCredentialsIssued,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(session.IDVProvider),
	)
	s.recordIssuance(session.IDVProvider, metrics.OutcomeIssued)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(session.Status))
	}
	return result, nil
}

func (s *Service) lookupReplay(ctx context.Context, session *sessions.Session, n id.IssuanceNullifier, now time.Time) (*models.Issuance, error) {
	rec, err := s.cache.Lookup(ctx, n, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up issuance nullifier")
	}
	if s.metrics != nil {
		s.metrics.ObserveNullifierLookup(rec != nil)
	}
	if rec == nil {
		return nil, nil
	}
	s.logAudit(ctx, audit.EventCredentialsReplayed,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(rec.Provider),
	)
	s.recordIssuance(session.IDVProvider, metrics.OutcomeReplayed)
	return &models.Issuance{SessionID: rec.SessionID, Bundle: rec.SignedBundle, Creds: rec.Creds, Replayed: true}, nil
}

// fetch reads the vendor result. A rejected verification fails the session;
// any other adapter error leaves it untouched so the holder can retry.
func (s *Service) fetch(ctx context.Context, adapter providers.Adapter, session *sessions.Session) (*identity.RawIdentityFields, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.FetchVerificationResult")
	defer span.End()

	start := time.Now()
	fields, err := adapter.FetchVerificationResult(ctx, session.ProviderSessionRef)
	if s.metrics != nil {
		s.metrics.ObserveProviderFetch(string(session.IDVProvider), err, start)
	}
	if err == nil {
		return fields, nil
	}
	span.RecordError(err)
	if reason, ok := providers.FailureReason(err); ok {
		return nil, s.failVerification(ctx, session, reason, metrics.OutcomeVerificationFailed)
	}
	s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
	s.warn(ctx, "provider fetch failed",
		"session_id", session.ID.String(),
		"provider", string(session.IDVProvider),
		"retryable", providers.IsRetryable(err),
		"error", err,
	)
	return nil, err
}

func (s *Service) checkSybil(ctx context.Context, session *sessions.Session, fields *identity.RawIdentityFields, fps sybil.Fingerprints, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "issuance.CheckSybil")
	defer span.End()

	existing, err := s.registry.FindActive(ctx, fps, registry.DedupCutoff(now, s.dedupMonths), session.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registrations")
	}

	collision := &models.SybilCollisionError{ExistingID: existing.ID}
	span.SetAttributes(attribute.String("registry.existing_id", existing.ID.String()))
	if err := s.registry.RecordCollision(ctx, &registry.CollisionMetadata{
		UUIDLegacy:             fps.Get(sybil.SchemeLegacy),
		UUIDV2:                 fps.Get(sybil.SchemeGovID),
		SessionID:              session.ID,
		ProviderSessionRef:     session.ProviderSessionRef,
		ExistingVerificationID: existing.ID,
		Populated:              fields.Populated(),
		OccurredAt:             now,
	}); err != nil {
		s.warn(ctx, "failed to record collision", "session_id", session.ID.String(), "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementSybilCollision(string(session.IDVProvider))
	}
	s.logAudit(ctx, audit.EventSybilCollision,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(session.IDVProvider),
		"reason", collision.Error(),
	)
	if err := s.failVerification(ctx, session, collision.Error(), metrics.OutcomeSybilCollision); !dErrors.HasCode(err, dErrors.CodeVerificationFailed) {
		return err
	}
	return collision
}

// failVerification moves the session to VERIFICATION_FAILED with reason.
// It returns the client error for the rejection, or the error that kept the
// session from being saved.
func (s *Service) failVerification(ctx context.Context, session *sessions.Session, reason, outcome string) error {
	if err := session.Fail(reason, requestcontext.Now(ctx)); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.recordIssuance(session.IDVProvider, metrics.OutcomeError)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	s.logAudit(ctx, audit.EventVerificationFailed,
		"session_id", session.ID.String(),
		"subject", session.SigDigest,
		"provider", string(session.IDVProvider),
		"reason", reason,
	)
	s.recordIssuance(session.IDVProvider, outcome)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(session.Status))
	}
	return dErrors.New(dErrors.CodeVerificationFailed, reason)
}

func (s *Service) sign(ctx context.Context, n id.IssuanceNullifier, creds *leaf.Creds) (signer.SignedBundle, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Sign")
	defer span.End()

	start := time.Now()
	bundle, err := s.signer.Issue(ctx, n.String(), creds.CountryCodeField(), creds.LeafHash())
	if s.metrics != nil {
		s.metrics.ObserveSigner(start)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return bundle, nil
}

func (s *Service) issueDummy(ctx context.Context, n id.IssuanceNullifier) (*models.Issuance, error) {
	creds, err := leaf.Build(leaf.DummyIdentity())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build dummy credentials")
	}
	bundle, err := s.sign(ctx, n, creds)
	if err != nil {
		return nil, err
	}
	return &models.Issuance{Bundle: bundle, Creds: creds}, nil
}

func (s *Service) loadSession(ctx context.Context, sessionID id.SessionID) (*sessions.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) recordIssuance(provider identity.Provider, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementIssuance(string(provider), outcome)
	}
}

func (s *Service) warn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.WarnContext(ctx, msg, args...)
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
