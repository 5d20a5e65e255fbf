package signer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/platform/config"
	dErrors "idserver/pkg/domain-errors"
)

func TestIssuePostsExactlyThreeFieldsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/issue", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"nullifier":"123","countryCode":"2","leafHash":"456"}`, string(body))
		assert.Equal(t, `{"nullifier":"123","countryCode":"2","leafHash":"456"}`, string(body))
		_, _ = w.Write([]byte(`{"signature":"sig","leaf":"456"}`))
	}))
	defer srv.Close()

	bundle, err := New(config.SignerConfig{URL: srv.URL, APIKey: "k", Timeout: time.Second}).
		Issue(context.Background(), "123", "2", "456")
	require.NoError(t, err)
	assert.JSONEq(t, `{"signature":"sig","leaf":"456"}`, string(bundle))
}

func TestIssueFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(config.SignerConfig{URL: srv.URL}).Issue(context.Background(), "1", "2", "3")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestIssueMalformedBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(config.SignerConfig{URL: srv.URL}).Issue(context.Background(), "1", "2", "3")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
