package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/credentials/leaf"
	"idserver/internal/issuance/models"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/testutil"
)

type fakeService struct {
	sessionID id.SessionID
	nullifier string
	issuance  *models.Issuance
	err       error
}

func (f *fakeService) Issue(_ context.Context, sessionID id.SessionID, nullifier string) (*models.Issuance, error) {
	f.sessionID, f.nullifier = sessionID, nullifier
	return f.issuance, f.err
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetCredentials(t *testing.T) {
	creds, err := leaf.Build(leaf.DummyIdentity())
	require.NoError(t, err)
	sessionID := id.NewSessionID()

	t.Run("returns the bundle with metadata", func(t *testing.T) {
		svc := &fakeService{issuance: &models.Issuance{
			SessionID: sessionID,
			Bundle:    json.RawMessage(`{"leaf":"7"}`),
			Creds:     creds,
		}}
		rr := testutil.DoRequest(router(New(svc, discard(), nil)),
			testutil.NewRequest(t, http.MethodGet, "/credentials/v2/0xabc?sessionId="+sessionID.String()))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, sessionID, svc.sessionID)
		assert.Equal(t, "0xabc", svc.nullifier)

		body := testutil.UnmarshalResponse[map[string]json.RawMessage](t, rr)
		assert.JSONEq(t, `"7"`, string((*body)["leaf"]))
		assert.Contains(t, string((*body)["metadata"]), creds.LeafHash())
	})

	t.Run("requires a session id", func(t *testing.T) {
		rr := testutil.DoRequest(router(New(&fakeService{}, discard(), nil)),
			testutil.NewRequest(t, http.MethodGet, "/credentials/v2/123"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("dummy mode does not", func(t *testing.T) {
		svc := &fakeService{issuance: &models.Issuance{Bundle: json.RawMessage(`{}`), Creds: creds}}
		rr := testutil.DoRequest(router(New(svc, discard(), nil).WithoutSession()),
			testutil.NewRequest(t, http.MethodGet, "/credentials/v2/123"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, svc.sessionID.IsNil())
	})

	t.Run("maps errors to status", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{&models.SybilCollisionError{ExistingID: id.NewVerificationID()}, http.StatusBadRequest, "duplicate_identity"},
			{dErrors.New(dErrors.CodeVerificationFailed, "Document is expired"), http.StatusBadRequest, "verification_failed"},
			{dErrors.New(dErrors.CodeUnavailable, "onfido timed out"), http.StatusServiceUnavailable, "service_unavailable"},
			{dErrors.New(dErrors.CodeNotFound, "Session not found"), http.StatusNotFound, "not_found"},
		}
		for _, tc := range cases {
			rr := testutil.DoRequest(router(New(&fakeService{err: tc.err}, discard(), nil)),
				testutil.NewRequest(t, http.MethodGet, "/credentials/v2/1?sessionId="+sessionID.String()))
			testutil.AssertStatusAndError(t, rr, tc.status, tc.code)
		}
	})
}
