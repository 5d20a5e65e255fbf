// Package signer is the client for the external credential signer. The
// signer holds the issuer key; this service never sees it.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"idserver/internal/platform/config"
	dErrors "idserver/pkg/domain-errors"
)

const maxBundleBytes = 1 << 20

// IssueRequest is the exact body the signer accepts. Field order matches
// the signer's argument order.
type IssueRequest struct {
	Nullifier   string `json:"nullifier"`
	CountryCode string `json:"countryCode"`
	LeafHash    string `json:"leafHash"`
}

// SignedBundle is the signer's response, passed through to the holder
// untouched.
type SignedBundle = json.RawMessage

// Client posts issue requests to the signer over HTTP.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

func New(cfg config.SignerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/") + "/v2/issue",
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Issue asks the signer to sign (nullifier, countryCode, leafHash). Any
// failure is reported as unavailable; the signer is never retried here.
func (c *Client) Issue(ctx context.Context, nullifier, countryCode, leafHash string) (SignedBundle, error) {
	payload, err := json.Marshal(IssueRequest{Nullifier: nullifier, CountryCode: countryCode, LeafHash: leafHash})
	if err != nil {
		return nil, fmt.Errorf("encode issue request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build issue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "signer unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read signer response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.Wrap(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)),
			dErrors.CodeUnavailable, "signer rejected issue request")
	}
	if !json.Valid(body) {
		return nil, dErrors.Wrap(errors.New("response is not JSON"), dErrors.CodeInternal, "signer returned malformed bundle")
	}
	return SignedBundle(body), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
