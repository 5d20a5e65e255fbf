package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/identity"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(id.NewSessionID(), "0xdigest", identity.ProviderVeriff, now)
	require.NoError(t, err)
	return s
}

func paid(t *testing.T) *Session {
	t.Helper()
	s := newSession(t)
	require.NoError(t, s.MarkPaid(Payment{TxHash: "0xabc", ChainID: 10}, now))
	return s
}

func requireStateError(t *testing.T, err error, current Status, expected ...Status) {
	t.Helper()
	var se *StateError
	require.True(t, errors.As(err, &se), "expected StateError, got %v", err)
	assert.Equal(t, current, se.Current)
	assert.Equal(t, expected, se.Expected)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestNewSession(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, StatusNeedsPayment, s.Status)

	_, err := NewSession(id.NewSessionID(), "  ", identity.ProviderVeriff, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewSession(id.NewSessionID(), "0xdigest", identity.Provider("persona"), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestMarkPaid(t *testing.T) {
	s := paid(t)
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, "0xabc", s.Payment.TxHash)

	err := s.MarkPaid(Payment{PayPalOrderID: "order-1"}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	fresh := newSession(t)
	assert.Error(t, fresh.MarkPaid(Payment{}, now))
}

func TestTransitions(t *testing.T) {
	t.Run("issue requires in progress", func(t *testing.T) {
		s := newSession(t)
		requireStateError(t, s.Issue(now), StatusNeedsPayment, StatusInProgress)
		assert.Equal(t, "Session status is 'NEEDS_PAYMENT'. Expected 'IN_PROGRESS'", s.Issue(now).Error())
	})

	t.Run("fail records reason", func(t *testing.T) {
		s := paid(t)
		require.NoError(t, s.Fail("Verification failed. Reason(s): expired document", now))
		assert.Equal(t, StatusVerificationFailed, s.Status)
		assert.Equal(t, "Verification failed. Reason(s): expired document", s.VerificationFailureReason)
	})

	t.Run("refund only from verification failed", func(t *testing.T) {
		s := paid(t)
		requireStateError(t, s.Refund("0xrefund", now), StatusInProgress, StatusVerificationFailed)

		require.NoError(t, s.Fail("nope", now))
		require.NoError(t, s.Refund("0xrefund", now))
		assert.Equal(t, StatusRefunded, s.Status)
		assert.Equal(t, "0xrefund", s.RefundTxHash)

		requireStateError(t, s.Refund("0xagain", now), StatusRefunded, StatusVerificationFailed)
	})

	t.Run("issued is terminal", func(t *testing.T) {
		s := paid(t)
		require.NoError(t, s.Issue(now))
		assert.True(t, s.Status.IsTerminal())
		assert.Error(t, s.Fail("late", now))
		assert.Error(t, s.ReassignProvider(identity.ProviderOnfido, now))
	})

	t.Run("attach requires in progress", func(t *testing.T) {
		s := newSession(t)
		requireStateError(t, s.AttachProviderSession("ref", now), StatusNeedsPayment, StatusInProgress)
		s = paid(t)
		require.NoError(t, s.AttachProviderSession("ref", now))
		assert.Equal(t, "ref", s.ProviderSessionRef)
	})
}

func TestReassignProvider(t *testing.T) {
	t.Run("failed session gets a fresh attempt", func(t *testing.T) {
		s := paid(t)
		require.NoError(t, s.AttachProviderSession("veriff-ref", now))
		require.NoError(t, s.Fail("document unreadable", now))

		require.NoError(t, s.ReassignProvider(identity.ProviderOnfido, now))
		assert.Equal(t, StatusInProgress, s.Status)
		assert.Equal(t, identity.ProviderOnfido, s.IDVProvider)
		assert.Empty(t, s.ProviderSessionRef)
		assert.Empty(t, s.VerificationFailureReason)
	})

	t.Run("same provider is rejected", func(t *testing.T) {
		s := paid(t)
		err := s.ReassignProvider(identity.ProviderVeriff, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("unpaid session is rejected", func(t *testing.T) {
		s := newSession(t)
		requireStateError(t, s.ReassignProvider(identity.ProviderOnfido, now),
			StatusNeedsPayment, StatusInProgress, StatusVerificationFailed)
	})
}

func TestStatusTable(t *testing.T) {
	assert.True(t, StatusNeedsPayment.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusNeedsPayment.CanTransitionTo(StatusIssued))
	assert.True(t, StatusVerificationFailed.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusRefunded.CanTransitionTo(StatusInProgress))
	assert.False(t, Status("BOGUS").IsValid())
}

func TestPaymentRequestValidate(t *testing.T) {
	hash := "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

	p, err := (&PaymentRequest{TxHash: hash, ChainID: 10}).Validate()
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.ChainID)

	_, err = (&PaymentRequest{TxHash: hash}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = (&PaymentRequest{TxHash: "0x12", ChainID: 1}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = (&PaymentRequest{}).Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	p, err = (&PaymentRequest{PayPalOrderID: "5O190127TN364715T"}).Validate()
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", p.PayPalOrderID)
}
