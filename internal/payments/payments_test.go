package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/identity"
	"idserver/internal/platform/config"
	"idserver/internal/session/models"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

var txHash = "0x" + strings.Repeat("ab", 32)

func TestFormatVerifier(t *testing.T) {
	v := NewFormatVerifier([]int64{1, 10})
	ctx := context.Background()

	assert.NoError(t, v.Verify(ctx, models.Payment{TxHash: txHash, ChainID: 10}))
	assert.NoError(t, v.Verify(ctx, models.Payment{PayPalOrderID: "5O190127TN364715T"}))

	err := v.Verify(ctx, models.Payment{TxHash: txHash, ChainID: 56})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, dErrors.Message(err), "1, 10")

	assert.Error(t, v.Verify(ctx, models.Payment{TxHash: "0x1234", ChainID: 1}))
	assert.Error(t, v.Verify(ctx, models.Payment{PayPalOrderID: "order 1"}))
	assert.Error(t, v.Verify(ctx, models.Payment{}))
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0x"+strings.Repeat("aB", 20)))
	assert.False(t, IsAddress(strings.Repeat("a", 42)))
	assert.False(t, IsAddress("0x123"))
}

func failedSession(t *testing.T) *models.Session {
	t.Helper()
	now := time.Now()
	s, err := models.NewSession(id.NewSessionID(), "digest", identity.ProviderVeriff, now)
	require.NoError(t, err)
	require.NoError(t, s.MarkPaid(models.Payment{TxHash: txHash, ChainID: 10}, now))
	require.NoError(t, s.Fail("declined", now))
	return s
}

func TestHTTPRefunder(t *testing.T) {
	session := failedSession(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		var req refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, session.ID.String(), req.SessionID)
		assert.Equal(t, txHash, req.TxHash)
		assert.Equal(t, int64(10), req.ChainID)
		_ = json.NewEncoder(w).Encode(refundResponse{TxHash: "0xrefund"})
	}))
	defer srv.Close()

	refundTx, err := NewHTTPRefunder(config.PaymentsConfig{RefundURL: srv.URL}).Refund(context.Background(), session, "")
	require.NoError(t, err)
	assert.Equal(t, "0xrefund", refundTx)
}

func TestHTTPRefunderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPRefunder(config.PaymentsConfig{RefundURL: srv.URL}).Refund(context.Background(), failedSession(t), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
