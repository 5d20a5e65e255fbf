package onfido

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

var required = []string{"document", "facial_similarity_video"}

func strPtr(s string) *string { return &s }

func docReport(country string) Report {
	return Report{
		ID:     "rep-doc",
		Name:   "document",
		Status: "complete",
		Properties: ReportProperties{
			FirstName:      "Satoshi",
			LastName:       "Nakamoto",
			DateOfBirth:    "1950-01-01",
			IssuingCountry: country,
			Barcode:        []Barcode{{MiddleName: strPtr("Bitcoin")}},
			CreatedAt:      "2024-05-06T07:08:09Z",
		},
	}
}

func faceReport() Report {
	return Report{ID: "rep-face", Name: "facial_similarity_video", Status: "complete"}
}

func TestValidateCheck(t *testing.T) {
	assert.Equal(t, "No report_ids found in check", ValidateCheck(&Check{Status: "complete", Result: "clear"}))
	assert.Equal(t, "Check failed. Status is 'in_progress'. Expected 'complete'.",
		ValidateCheck(&Check{ReportIDs: []string{"r"}, Status: "in_progress"}))
	assert.Equal(t, "Check failed. Result is 'consider'. Expected 'clear'.",
		ValidateCheck(&Check{ReportIDs: []string{"r"}, Status: "complete", Result: "consider"}))
	assert.Empty(t, ValidateCheck(&Check{ReportIDs: []string{"r"}, Status: "complete", Result: "clear"}))
}

func TestValidateReports(t *testing.T) {
	assert.Equal(t, "Verification failed. No reports found", ValidateReports(nil, required))
	assert.Equal(t, "Verification failed. Missing reports: facial_similarity_video",
		ValidateReports([]Report{docReport("USA")}, required))

	pending := faceReport()
	pending.Status = "awaiting_data"
	assert.Equal(t, "Verification failed. Report status is 'awaiting_data'. Expected 'complete'.",
		ValidateReports([]Report{docReport("USA"), pending}, required))

	assert.Equal(t, "Verification failed. Unsupported country ATA",
		ValidateReports([]Report{docReport("ATA"), faceReport()}, required))
}

func TestNormalizeUsesAlpha3AndBarcodeMiddleName(t *testing.T) {
	fields, err := Normalize([]Report{faceReport(), docReport("USA")}, required)
	require.NoError(t, err)

	assert.Equal(t, "US", fields.CountryCode)
	assert.Equal(t, "Bitcoin", fields.MiddleName)
	assert.Equal(t, "1950-01-01", fields.Birthdate)
	assert.Equal(t, "2024-05-06", fields.CompletedAt)
	assert.Zero(t, fields.StreetNumber)
}

func TestNormalizeUnparseableBirthdateIsBadData(t *testing.T) {
	doc := docReport("USA")
	doc.Properties.DateOfBirth = "01.01.1950"

	_, err := Normalize([]Report{faceReport(), doc}, required)
	assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
}

func TestClientFetchesCheckThenReports(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/checks/chk-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token token=tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Check{
			ID: "chk-1", Status: "complete", Result: "clear",
			ApplicantID: "app-1", ReportIDs: []string{"rep-doc", "rep-face"},
		})
	})
	mux.HandleFunc("/reports/rep-doc", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(docReport("GBR"))
	})
	mux.HandleFunc("/reports/rep-face", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(faceReport())
	})
	var deleted bool
	mux.HandleFunc("/applicants/app-1", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.Method == http.MethodDelete
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(config.OnfidoConfig{BaseURL: srv.URL, APIToken: "tok"}, time.Second)
	fields, err := client.FetchVerificationResult(context.Background(), "chk-1")
	require.NoError(t, err)
	assert.Equal(t, "GB", fields.CountryCode)

	require.NoError(t, client.DeleteRemoteSession(context.Background(), "chk-1"))
	assert.True(t, deleted)
}

func TestClientRejectedCheckIsVerificationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Check{Status: "complete", Result: "consider", ReportIDs: []string{"r"}})
	}))
	defer srv.Close()

	_, err := New(config.OnfidoConfig{BaseURL: srv.URL}, time.Second).FetchVerificationResult(context.Background(), "chk-1")
	reason, ok := providers.FailureReason(err)
	require.True(t, ok)
	assert.Contains(t, reason, "consider")
}

func TestClientMissingCheckIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(config.OnfidoConfig{BaseURL: srv.URL}, time.Second).FetchVerificationResult(context.Background(), "missing")
	assert.Equal(t, providers.ErrorNotFound, providers.GetCategory(err))
	assert.False(t, providers.IsRetryable(err))
}
