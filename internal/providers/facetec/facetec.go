// Package facetec adapts FaceTec 3D-2D ID scan results held by the FaceTec
// server, keyed by the session's externalDatabaseRefID.
package facetec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idserver/internal/identity"
	"idserver/internal/platform/config"
	"idserver/internal/providers"
)

const provider = identity.ProviderFaceTec

// IDScanResult is the subset of a match-3d-2d-idscan response the
// credential flow reads.
type IDScanResult struct {
	Success                                     bool   `json:"success"`
	Error                                       bool   `json:"error"`
	ErrorMessage                                string `json:"errorMessage"`
	DidCompleteIDScanWithoutMatching            bool   `json:"didCompleteIDScanWithoutMatching"`
	DidCompleteIDScanWithoutMatchingOCRTemplate bool   `json:"didCompleteIDScanWithoutMatchingOCRTemplate"`
	FullIDStatusEnumInt                         int    `json:"fullIDStatusEnumInt"`
	MatchLevel                                  int    `json:"matchLevel"`
	// DocumentData is itself a JSON document, delivered as a string.
	DocumentData string `json:"documentData"`
}

type DocumentData struct {
	ScannedValues *ScannedValues `json:"scannedValues"`
	TemplateInfo  *TemplateInfo  `json:"templateInfo"`
}

type ScannedValues struct {
	Groups []Group `json:"groups"`
}

type Group struct {
	GroupKey string  `json:"groupKey"`
	Fields   []Field `json:"fields"`
}

type Field struct {
	FieldKey string `json:"fieldKey"`
	Value    string `json:"value"`
}

type TemplateInfo struct {
	TemplateName    string `json:"templateName"`
	TemplateType    string `json:"templateType"`
	DocumentCountry string `json:"documentCountry"`
	DocumentState   string `json:"documentState"`
}

// Flatten collapses every group into one fieldKey → value map. Later groups
// win on duplicate keys.
func (s *ScannedValues) Flatten() map[string]string {
	out := make(map[string]string)
	for _, g := range s.Groups {
		for _, f := range g.Fields {
			out[f.FieldKey] = f.Value
		}
	}
	return out
}

// Client talks to a FaceTec server.
type Client struct {
	http          *providers.HTTPClient
	baseURL       string
	apiKey        string
	groupName     string
	minMatchLevel int
	now           func() time.Time
}

func New(cfg config.FaceTecConfig, timeout time.Duration) *Client {
	return &Client{
		http:          providers.NewHTTPClient(provider, timeout),
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		groupName:     cfg.GroupName,
		minMatchLevel: cfg.MinMatchLevel,
		now:           time.Now,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}

func (c *Client) FetchVerificationResult(ctx context.Context, ref string) (*identity.RawIdentityFields, error) {
	var result IDScanResult
	endpoint := fmt.Sprintf("%s/idscan-result/%s", c.baseURL, url.PathEscape(ref))
	if err := c.http.Do(ctx, http.MethodGet, endpoint, nil, c.headers(), &result); err != nil {
		return nil, err
	}
	return Normalize(&result, c.minMatchLevel, c.now())
}

// DeleteRemoteSession removes the enrollment from the 3D-DB group.
func (c *Client) DeleteRemoteSession(ctx context.Context, ref string) error {
	body := map[string]string{"externalDatabaseRefID": ref, "groupName": c.groupName}
	return c.http.Do(ctx, http.MethodPost, c.baseURL+"/3d-db/delete", body, c.headers(), nil)
}

// Validate returns the reason a scan cannot be issued against, or "", and
// the decoded document data when it got that far.
func Validate(r *IDScanResult, minMatchLevel int) (string, *DocumentData) {
	if r.DidCompleteIDScanWithoutMatching {
		return "Verification failed. didCompleteIDScanWithoutMatching is true. Expected false.", nil
	}
	if r.DidCompleteIDScanWithoutMatchingOCRTemplate {
		return "Verification failed. didCompleteIDScanWithoutMatchingOCRTemplate is true. Expected false.", nil
	}
	if r.Error {
		return "Verification failed. FaceTec returned an error. " + r.ErrorMessage, nil
	}
	if r.FullIDStatusEnumInt != 0 {
		return fmt.Sprintf("Verification failed. fullIDStatusEnumInt is %d. Expected 0.", r.FullIDStatusEnumInt), nil
	}
	if r.MatchLevel < minMatchLevel {
		return fmt.Sprintf("Verification failed. matchLevel is %d. Expected %d or greater.", r.MatchLevel, minMatchLevel), nil
	}

	var doc DocumentData
	if r.DocumentData != "" {
		if err := json.Unmarshal([]byte(r.DocumentData), &doc); err != nil {
			return "Verification failed. documentData is not valid JSON.", nil
		}
	}
	if doc.ScannedValues == nil {
		return "Verification failed. documentData.scannedValues is missing.", nil
	}
	if doc.ScannedValues.Flatten()["dateOfBirth"] == "" {
		return "Verification failed. dateOfBirth is missing.", nil
	}
	if doc.TemplateInfo == nil {
		return "Verification failed. documentData.templateInfo is missing.", nil
	}
	if !identity.IsSupportedCountry(identity.NormalizeCountry(doc.TemplateInfo.DocumentCountry)) {
		return "Verification failed. Unsupported country " + doc.TemplateInfo.DocumentCountry + ".", nil
	}
	return "", &doc
}

// Normalize maps a scan onto the canonical identity fields. FaceTec's OCR
// yields no street address and no middle name.
func Normalize(r *IDScanResult, minMatchLevel int, now time.Time) (*identity.RawIdentityFields, error) {
	reason, doc := Validate(r, minMatchLevel)
	if reason != "" {
		return nil, providers.VerificationFailed(provider, reason)
	}
	values := doc.ScannedValues.Flatten()

	dob, ok := ParseOCRDate(values["dateOfBirth"])
	if !ok {
		// The person may rescan, so the session is left alone.
		return nil, providers.NewProviderError(providers.ErrorBadData, provider,
			fmt.Sprintf("Verification failed. Parsed dateOfBirth (%s) is not a valid date.", values["dateOfBirth"]), nil)
	}

	first, last := values["firstName"], values["lastName"]
	if full := strings.TrimSpace(values["fullName"]); full != "" {
		fullFirst, fullLast := splitFullName(full)
		if first == "" {
			first = fullFirst
		}
		if last == "" {
			last = fullLast
		}
	}

	zip := values["zipCode"]
	if len(zip) > 5 {
		zip = zip[:5]
	}

	return &identity.RawIdentityFields{
		CountryCode: identity.NormalizeCountry(doc.TemplateInfo.DocumentCountry),
		FirstName:   first,
		LastName:    last,
		Birthdate:   dob,
		City:        values["city"],
		Subdivision: values["state"],
		ZipCode:     zip,
		CompletedAt: identity.FormatDate(now),
	}, nil
}

// splitFullName treats the last word as the last name.
func splitFullName(full string) (first, last string) {
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}
