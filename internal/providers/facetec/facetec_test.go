package facetec

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

func TestParseOCRDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1985-08-15", "1985-08-15", true},
		{"15-8-1985", "1985-08-15", true},
		{"8-15-1985", "1985-08-15", true},
		{"2023/12/25", "2023-12-25", true},
		{"12/25/2023", "2023-12-25", true},
		{"25 December 2023", "2023-12-25", true},
		{"25-Dec-2023", "2023-12-25", true},
		{"Dec-25-2023", "2023-12-25", true},
		{"DEC 25 2023", "2023-12-25", true},
		{"31-12-23", "2023-12-31", true},
		{"0-122-12", "", false},
		{"33-23-Dec", "", false},
		{"2023-12", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseOCRDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func scan(t *testing.T, fields map[string]string, country string) *IDScanResult {
	t.Helper()
	var group Group
	for k, v := range fields {
		group.Fields = append(group.Fields, Field{FieldKey: k, Value: v})
	}
	doc := DocumentData{
		ScannedValues: &ScannedValues{Groups: []Group{group}},
		TemplateInfo:  &TemplateInfo{DocumentCountry: country},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return &IDScanResult{Success: true, MatchLevel: 10, DocumentData: string(raw)}
}

func TestNormalizeSplitsFullName(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := scan(t, map[string]string{
		"fullName":    "Satoshi Bitcoin Nakamoto",
		"dateOfBirth": "01/02/1950",
		"city":        "Lisbon",
		"zipCode":     "123456789",
	}, "Portugal")

	fields, err := Normalize(r, 6, now)
	require.NoError(t, err)
	assert.Equal(t, "PT", fields.CountryCode)
	assert.Equal(t, "Satoshi Bitcoin", fields.FirstName)
	assert.Equal(t, "Nakamoto", fields.LastName)
	assert.Equal(t, "1950-02-01", fields.Birthdate)
	assert.Equal(t, "12345", fields.ZipCode)
	assert.Empty(t, fields.StreetName)
	assert.Equal(t, "2024-01-02", fields.CompletedAt)
}

func TestNormalizeRejections(t *testing.T) {
	now := time.Now()

	r := scan(t, map[string]string{"dateOfBirth": "1950-01-01"}, "United States")
	r.MatchLevel = 3
	_, err := Normalize(r, 6, now)
	reason, ok := providers.FailureReason(err)
	require.True(t, ok)
	assert.Equal(t, "Verification failed. matchLevel is 3. Expected 6 or greater.", reason)

	r = scan(t, map[string]string{"firstName": "A"}, "United States")
	_, err = Normalize(r, 6, now)
	reason, _ = providers.FailureReason(err)
	assert.Equal(t, "Verification failed. dateOfBirth is missing.", reason)

	r = scan(t, map[string]string{"dateOfBirth": "1950-01-01"}, "Atlantis")
	_, err = Normalize(r, 6, now)
	reason, _ = providers.FailureReason(err)
	assert.Equal(t, "Verification failed. Unsupported country Atlantis.", reason)

	r = &IDScanResult{DidCompleteIDScanWithoutMatching: true}
	_, err = Normalize(r, 6, now)
	_, ok = providers.FailureReason(err)
	assert.True(t, ok)
}

func TestNormalizeUnreadableDateOfBirthLeavesSessionAlone(t *testing.T) {
	r := scan(t, map[string]string{"dateOfBirth": "3l-I2-I9B5"}, "United States")
	_, err := Normalize(r, 6, time.Now())
	require.Error(t, err)
	_, failed := providers.FailureReason(err)
	assert.False(t, failed)
	assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
}

func TestClient(t *testing.T) {
	var deleteBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		switch r.URL.Path {
		case "/idscan-result/ref-1":
			_ = json.NewEncoder(w).Encode(scan(t, map[string]string{
				"firstName": "Satoshi", "lastName": "Nakamoto", "dateOfBirth": "1950-01-01",
			}, "Japan"))
		case "/3d-db/delete":
			_ = json.NewDecoder(r.Body).Decode(&deleteBody)
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := New(config.FaceTecConfig{BaseURL: srv.URL, APIKey: "key", GroupName: "kyc", MinMatchLevel: 6}, time.Second)
	fields, err := client.FetchVerificationResult(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "JP", fields.CountryCode)

	require.NoError(t, client.DeleteRemoteSession(context.Background(), "ref-1"))
	assert.Equal(t, map[string]string{"externalDatabaseRefID": "ref-1", "groupName": "kyc"}, deleteBody)
}
