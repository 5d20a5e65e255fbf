// Package veriff adapts Veriff session decisions.
package veriff

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idserver/internal/identity"
	"idserver/internal/platform/config"
	"idserver/internal/providers"
)

const (
	approvedCode = 9001
	provider     = identity.ProviderVeriff
)

// Client talks to the Veriff public API.
type Client struct {
	http      *providers.HTTPClient
	baseURL   string
	publicKey string
	secretKey string
}

func New(cfg config.VeriffConfig, timeout time.Duration) *Client {
	return &Client{
		http:      providers.NewHTTPClient(provider, timeout),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
	}
}

// signature is the X-HMAC-SIGNATURE Veriff expects for requests whose
// payload is the session id.
func (c *Client) signature(sessionID string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) headers(sessionID string) map[string]string {
	return map[string]string{
		"X-AUTH-CLIENT":    c.publicKey,
		"X-HMAC-SIGNATURE": c.signature(sessionID),
	}
}

func (c *Client) FetchVerificationResult(ctx context.Context, ref string) (*identity.RawIdentityFields, error) {
	var decision DecisionResponse
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/decision", c.baseURL, url.PathEscape(ref))
	if err := c.http.Do(ctx, http.MethodGet, endpoint, nil, c.headers(ref), &decision); err != nil {
		return nil, err
	}
	return Normalize(&decision)
}

func (c *Client) DeleteRemoteSession(ctx context.Context, ref string) error {
	endpoint := fmt.Sprintf("%s/v1/sessions/%s", c.baseURL, url.PathEscape(ref))
	return c.http.Do(ctx, http.MethodDelete, endpoint, nil, c.headers(ref), nil)
}

// Validate returns the reason a decision cannot be issued against, or "".
func Validate(d *DecisionResponse) string {
	if d.Status != "success" {
		return fmt.Sprintf("Verification failed. Status is '%s'. Expected 'success'.", d.Status)
	}
	v := d.Verification
	if v == nil {
		return "Verification missing necessary field: verification."
	}
	if v.Code != approvedCode {
		return fmt.Sprintf("Verification failed. Verification code is %d. Expected %d.", v.Code, approvedCode)
	}
	if v.Status != "approved" {
		return fmt.Sprintf("Verification failed. Verification status is %s. Expected 'approved'.", v.Status)
	}
	for _, f := range []struct{ name, value string }{
		{"firstName", v.Person.FirstName},
		{"lastName", v.Person.LastName},
		{"dateOfBirth", v.Person.DateOfBirth},
	} {
		if f.value == "" {
			return "Verification missing necessary field: " + f.name + "."
		}
	}
	if v.Document == nil {
		return "Verification missing necessary field: document."
	}
	if v.Document.Country == "" {
		return "Verification missing necessary field: country."
	}
	if !identity.IsSupportedCountry(identity.NormalizeCountry(v.Document.Country)) {
		return "Unsupported country: " + v.Document.Country + "."
	}
	return ""
}

// Normalize validates an approved decision and maps it onto the canonical
// identity fields. Veriff never reports a middle name or document expiry.
func Normalize(d *DecisionResponse) (*identity.RawIdentityFields, error) {
	if reason := Validate(d); reason != "" {
		return nil, providers.VerificationFailed(provider, reason)
	}
	v := d.Verification
	dob, err := providers.Birthdate(provider, "person.dateOfBirth", v.Person.DateOfBirth)
	if err != nil {
		return nil, err
	}
	var addr ParsedAddress
	if len(v.Person.Addresses) > 0 {
		addr = v.Person.Addresses[0].ParsedAddress
	}
	return &identity.RawIdentityFields{
		CountryCode:  identity.NormalizeCountry(v.Document.Country),
		FirstName:    v.Person.FirstName,
		LastName:     v.Person.LastName,
		Birthdate:    dob,
		City:         addr.City,
		Subdivision:  addr.State,
		StreetNumber: identity.ParseUint(addr.HouseNumber),
		StreetName:   addr.Street,
		StreetUnit:   identity.ParseStreetUnit(addr.Unit),
		ZipCode:      addr.Postcode,
		CompletedAt:  providers.CompletionDate(v.DecisionTime),
	}, nil
}
