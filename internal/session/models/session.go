package models

import (
	"strings"
	"time"

	"idserver/internal/identity"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

// Payment references what the user paid with. Exactly one of the on-chain
// transaction or the PayPal order is set.
type Payment struct {
	TxHash        string `json:"txHash,omitempty"`
	ChainID       int64  `json:"chainId,omitempty"`
	PayPalOrderID string `json:"paypalOrderId,omitempty"`
}

func (p Payment) IsZero() bool {
	return p.TxHash == "" && p.PayPalOrderID == ""
}

// Session is the aggregate root of one verification attempt.
//
// Invariants:
//   - SigDigest and IDVProvider are set at construction
//   - Status only changes through the transition methods below
//   - ISSUED and REFUNDED are terminal
//   - RefundTxHash is set exactly when Status is REFUNDED
type Session struct {
	ID                        id.SessionID      `json:"_id"`
	SigDigest                 string            `json:"sigDigest"`
	IDVProvider               identity.Provider `json:"idvProvider"`
	Status                    Status            `json:"status"`
	ProviderSessionRef        string            `json:"providerSessionRef,omitempty"`
	VerificationFailureReason string            `json:"verificationFailureReason,omitempty"`
	Payment                   Payment           `json:"payment"`
	RefundTxHash              string            `json:"refundTxHash,omitempty"`
	CreatedAt                 time.Time         `json:"createdAt"`
	UpdatedAt                 time.Time         `json:"updatedAt"`
}

// NewSession creates a session awaiting payment.
func NewSession(sessionID id.SessionID, sigDigest string, provider identity.Provider, now time.Time) (*Session, error) {
	sigDigest = strings.TrimSpace(sigDigest)
	if sigDigest == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sigDigest is required")
	}
	if !provider.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported idvProvider")
	}
	return &Session{
		ID:          sessionID,
		SigDigest:   sigDigest,
		IDVProvider: provider,
		Status:      StatusNeedsPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Require fails with a StateError unless the session is in expected.
func (s *Session) Require(expected Status) error {
	if s.Status != expected {
		return stateError(s, expected)
	}
	return nil
}

// MarkPaid records the payment and starts verification.
func (s *Session) MarkPaid(payment Payment, now time.Time) error {
	if payment.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "payment reference is required")
	}
	if !s.Payment.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "session is already associated with a payment")
	}
	if err := s.Require(StatusNeedsPayment); err != nil {
		return err
	}
	s.Payment = payment
	s.Status = StatusInProgress
	s.UpdatedAt = now
	return nil
}

// AttachProviderSession links the vendor-side session.
func (s *Session) AttachProviderSession(ref string, now time.Time) error {
	if strings.TrimSpace(ref) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "provider session reference is required")
	}
	if err := s.Require(StatusInProgress); err != nil {
		return err
	}
	s.ProviderSessionRef = ref
	s.UpdatedAt = now
	return nil
}

// Fail moves an in-progress session to VERIFICATION_FAILED.
func (s *Session) Fail(reason string, now time.Time) error {
	if err := s.Require(StatusInProgress); err != nil {
		return err
	}
	s.Status = StatusVerificationFailed
	s.VerificationFailureReason = reason
	s.UpdatedAt = now
	return nil
}

// Issue marks credentials as issued.
func (s *Session) Issue(now time.Time) error {
	if err := s.Require(StatusInProgress); err != nil {
		return err
	}
	s.Status = StatusIssued
	s.UpdatedAt = now
	return nil
}

// Refund records the refund transaction of a failed session.
func (s *Session) Refund(txHash string, now time.Time) error {
	if txHash == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "refund transaction hash is required")
	}
	if err := s.Require(StatusVerificationFailed); err != nil {
		return err
	}
	s.RefundTxHash = txHash
	s.Status = StatusRefunded
	s.UpdatedAt = now
	return nil
}

// ReassignProvider is the admin provider switch. The user gets a fresh
// attempt with another vendor without paying again.
func (s *Session) ReassignProvider(provider identity.Provider, now time.Time) error {
	if !provider.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unsupported idvProvider")
	}
	if s.Status == StatusNeedsPayment || !s.Status.CanTransitionTo(StatusInProgress) {
		return stateError(s, StatusInProgress, StatusVerificationFailed)
	}
	if s.IDVProvider == provider {
		return dErrors.New(dErrors.CodeInvariantViolation, "session already uses idvProvider "+string(provider))
	}
	s.IDVProvider = provider
	s.Status = StatusInProgress
	s.ProviderSessionRef = ""
	s.VerificationFailureReason = ""
	s.UpdatedAt = now
	return nil
}
