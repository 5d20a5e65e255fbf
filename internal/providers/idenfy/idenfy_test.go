package idenfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/platform/config"
	"idserver/internal/providers"
)

func approved() (*Status, *Data) {
	return &Status{Status: "APPROVED", ManualDocument: "DOC_VALIDATED", ManualFace: "FACE_MATCH"},
		&Data{DocFirstName: "SATOSHI", DocLastName: "NAKAMOTO", DocDob: "1950-01-01", DocNationality: "JP"}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 7, 8, 23, 0, 0, 0, time.UTC)
	status, data := approved()

	fields, err := Normalize(status, data, "scan-1", now)
	require.NoError(t, err)
	assert.Equal(t, "JP", fields.CountryCode)
	assert.Equal(t, "1950-01-01", fields.Birthdate)
	assert.Equal(t, "2024-07-08", fields.CompletedAt)
	assert.Empty(t, fields.ZipCode)
	assert.Empty(t, fields.City)
}

func TestNormalizeUnparseableBirthdateIsBadData(t *testing.T) {
	status, data := approved()
	data.DocDob = "1950/01/01"

	_, err := Normalize(status, data, "scan-1", time.Now())
	assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
}

func TestValidate(t *testing.T) {
	status, data := approved()
	status.ManualFace = "FACE_MISMATCH"
	assert.Equal(t, "Verification failed. Failed to manually match face. manualFace is 'FACE_MISMATCH'. Expected 'FACE_MATCH'. scanRef: scan-1",
		Validate(status, data, "scan-1"))

	status, data = approved()
	status.Status = "DENIED"
	assert.Equal(t, "Verification failed. Status is DENIED. Expected 'APPROVED'. scanRef: scan-1", Validate(status, data, "scan-1"))

	status, data = approved()
	data.DocDob = ""
	assert.Equal(t, "Verification data missing necessary field: docDob. scanRef: scan-1", Validate(status, data, "scan-1"))
}

func TestClientPostsScanRefWithBasicAuth(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var body scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "scan-1", body.ScanRef)

		status, data := approved()
		switch r.URL.Path {
		case "/api/v2/status":
			_ = json.NewEncoder(w).Encode(status)
		case "/api/v2/data":
			_ = json.NewEncoder(w).Encode(data)
		case "/api/v2/delete":
			deleted = true
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := New(config.IDenfyConfig{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"}, time.Second)
	fields, err := client.FetchVerificationResult(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "SATOSHI", fields.FirstName)

	require.NoError(t, client.DeleteRemoteSession(context.Background(), "scan-1"))
	assert.True(t, deleted)
}

func TestClientTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(config.IDenfyConfig{BaseURL: srv.URL}, 20*time.Millisecond).FetchVerificationResult(context.Background(), "scan-1")
	require.Error(t, err)
	assert.Equal(t, providers.ErrorTimeout, providers.GetCategory(err))
	assert.True(t, providers.IsRetryable(err))
}
