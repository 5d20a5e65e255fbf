package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"idserver/internal/refund/mutex"
	"idserver/internal/session/models"
	id "idserver/pkg/domain"
	"idserver/pkg/testutil"
)

type fakeService struct {
	gotID id.SessionID
	gotTo string
	gotTx string
	err   error
}

func (f *fakeService) RefundSession(_ context.Context, sessionID id.SessionID, to string) (*models.Session, error) {
	f.gotID, f.gotTo = sessionID, to
	if f.err != nil {
		return nil, f.err
	}
	return &models.Session{ID: sessionID, Status: models.StatusRefunded}, nil
}

func (f *fakeService) RefundByTxHash(_ context.Context, txHash string) (*models.Session, error) {
	f.gotTx = txHash
	if f.err != nil {
		return nil, f.err
	}
	return &models.Session{ID: id.NewSessionID(), Status: models.StatusRefunded}, nil
}

func newRouter(svc Service) http.Handler {
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	return r
}

func TestHandleRefund(t *testing.T) {
	to := "0x" + strings.Repeat("ab", 20)

	t.Run("success", func(t *testing.T) {
		svc := &fakeService{}
		sessionID := id.NewSessionID()
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost,
			"/sessions/"+sessionID.String()+"/refund", map[string]string{"to": to}))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, sessionID, svc.gotID)
		assert.Equal(t, to, svc.gotTo)
		testutil.AssertJSONContains(t, rr, "status", string(models.StatusRefunded))
	})

	t.Run("refund in progress is a client error", func(t *testing.T) {
		svc := &fakeService{err: mutex.ErrRefundInProgress}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost,
			"/sessions/"+id.NewSessionID().String()+"/refund", map[string]string{"to": to}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "refund_in_progress")
	})

	t.Run("bad session id", func(t *testing.T) {
		rr := testutil.DoRequest(newRouter(&fakeService{}), testutil.NewJSONRequest(t, http.MethodPost,
			"/sessions/nope/refund", map[string]string{"to": to}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestHandleAdminRefund(t *testing.T) {
	svc := &fakeService{}
	txHash := "0x" + strings.Repeat("11", 32)
	rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost,
		"/admin/refund-failed-session", map[string]string{"txHash": txHash}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, txHash, svc.gotTx)
}
