// Package idenfy adapts iDenfy scans. A scan is identified by its scanRef.
package idenfy

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"idserver/internal/identity"
	"idserver/internal/platform/config"
	"idserver/internal/providers"
)

const provider = identity.ProviderIDenfy

// Status is the body of POST /api/v2/status.
type Status struct {
	Status         string   `json:"status"`
	ManualDocument string   `json:"manualDocument"`
	ManualFace     string   `json:"manualFace"`
	AutoDocument   string   `json:"autoDocument"`
	AutoFace       string   `json:"autoFace"`
	Fraudtags      []string `json:"fraudTags"`
	MismatchTags   []string `json:"mismatchTags"`
}

// Data is the body of POST /api/v2/data.
type Data struct {
	DocFirstName   string `json:"docFirstName"`
	DocLastName    string `json:"docLastName"`
	DocDob         string `json:"docDob"`
	DocNationality string `json:"docNationality"`
	DocExpiry      string `json:"docExpiry"`
	DocNumber      string `json:"docNumber"`
	DocType        string `json:"docType"`
}

type scanRequest struct {
	ScanRef string `json:"scanRef"`
}

// Client talks to the iDenfy verification API with basic auth.
type Client struct {
	http    *providers.HTTPClient
	baseURL string
	key     string
	secret  string
	now     func() time.Time
}

func New(cfg config.IDenfyConfig, timeout time.Duration) *Client {
	return &Client{
		http:    providers.NewHTTPClient(provider, timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
		now:     time.Now,
	}
}

func (c *Client) post(ctx context.Context, path, scanRef string, out any) error {
	auth := base64.StdEncoding.EncodeToString([]byte(c.key + ":" + c.secret))
	headers := map[string]string{"Authorization": "Basic " + auth}
	return c.http.Do(ctx, http.MethodPost, c.baseURL+path, scanRequest{ScanRef: scanRef}, headers, out)
}

func (c *Client) FetchVerificationResult(ctx context.Context, scanRef string) (*identity.RawIdentityFields, error) {
	var (
		status Status
		data   Data
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.post(gctx, "/api/v2/status", scanRef, &status) })
	g.Go(func() error { return c.post(gctx, "/api/v2/data", scanRef, &data) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Normalize(&status, &data, scanRef, c.now())
}

func (c *Client) DeleteRemoteSession(ctx context.Context, scanRef string) error {
	return c.post(ctx, "/api/v2/delete", scanRef, nil)
}

// Validate returns the reason a scan cannot be issued against, or "".
func Validate(status *Status, data *Data, scanRef string) string {
	if status.ManualDocument != "DOC_VALIDATED" {
		return fmt.Sprintf("Verification failed. Failed to manually validate document. manualDocument is '%s'. Expected 'DOC_VALIDATED'. scanRef: %s", status.ManualDocument, scanRef)
	}
	if status.ManualFace != "FACE_MATCH" {
		return fmt.Sprintf("Verification failed. Failed to manually match face. manualFace is '%s'. Expected 'FACE_MATCH'. scanRef: %s", status.ManualFace, scanRef)
	}
	if status.Status != "APPROVED" {
		return fmt.Sprintf("Verification failed. Status is %s. Expected 'APPROVED'. scanRef: %s", status.Status, scanRef)
	}
	for _, f := range []struct{ name, value string }{
		{"docFirstName", data.DocFirstName},
		{"docLastName", data.DocLastName},
		{"docDob", data.DocDob},
		{"docNationality", data.DocNationality},
	} {
		if f.value == "" {
			return fmt.Sprintf("Verification data missing necessary field: %s. scanRef: %s", f.name, scanRef)
		}
	}
	if !identity.IsSupportedCountry(identity.NormalizeCountry(data.DocNationality)) {
		return fmt.Sprintf("Verification failed. Unsupported country %s. scanRef: %s", data.DocNationality, scanRef)
	}
	return ""
}

// Normalize maps an approved scan onto the canonical identity fields.
// iDenfy returns no address, so the Sybil fingerprint rests on name and
// date of birth.
func Normalize(status *Status, data *Data, scanRef string, now time.Time) (*identity.RawIdentityFields, error) {
	if reason := Validate(status, data, scanRef); reason != "" {
		return nil, providers.VerificationFailed(provider, reason)
	}
	dob, err := providers.Birthdate(provider, "docDob", data.DocDob)
	if err != nil {
		return nil, err
	}
	return &identity.RawIdentityFields{
		CountryCode: identity.NormalizeCountry(data.DocNationality),
		FirstName:   data.DocFirstName,
		LastName:    data.DocLastName,
		Birthdate:   dob,
		CompletedAt: identity.FormatDate(now),
	}, nil
}
