// Package onfido adapts Onfido checks and their reports.
package onfido

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"idserver/internal/identity"
	"idserver/internal/platform/config"
	"idserver/internal/providers"
)

const provider = identity.ProviderOnfido

const documentReport = "document"

// Client talks to the Onfido v3.6 API. baseURL already carries the version.
type Client struct {
	http            *providers.HTTPClient
	baseURL         string
	token           string
	requiredReports []string
}

func New(cfg config.OnfidoConfig, timeout time.Duration) *Client {
	required := cfg.RequiredReports
	if len(required) == 0 {
		required = []string{documentReport, "facial_similarity_video"}
	}
	return &Client{
		http:            providers.NewHTTPClient(provider, timeout),
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		token:           cfg.APIToken,
		requiredReports: required,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Token token=" + c.token}
}

func (c *Client) getCheck(ctx context.Context, checkID string) (*Check, error) {
	var check Check
	endpoint := fmt.Sprintf("%s/checks/%s", c.baseURL, url.PathEscape(checkID))
	if err := c.http.Do(ctx, http.MethodGet, endpoint, nil, c.headers(), &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// getReports fetches every report concurrently, preserving order.
func (c *Client) getReports(ctx context.Context, ids []string) ([]Report, error) {
	reports := make([]Report, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			endpoint := fmt.Sprintf("%s/reports/%s", c.baseURL, url.PathEscape(id))
			return c.http.Do(gctx, http.MethodGet, endpoint, nil, c.headers(), &reports[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// FetchVerificationResult takes an Onfido check id.
func (c *Client) FetchVerificationResult(ctx context.Context, ref string) (*identity.RawIdentityFields, error) {
	check, err := c.getCheck(ctx, ref)
	if err != nil {
		return nil, err
	}
	if reason := ValidateCheck(check); reason != "" {
		return nil, providers.VerificationFailed(provider, reason)
	}
	reports, err := c.getReports(ctx, check.ReportIDs)
	if err != nil {
		return nil, err
	}
	return Normalize(reports, c.requiredReports)
}

// DeleteRemoteSession removes the applicant behind the check, which takes
// its documents and reports with it.
func (c *Client) DeleteRemoteSession(ctx context.Context, ref string) error {
	check, err := c.getCheck(ctx, ref)
	if err != nil {
		return err
	}
	if check.ApplicantID == "" {
		return providers.NewProviderError(providers.ErrorBadData, provider, "check has no applicant_id", nil)
	}
	endpoint := fmt.Sprintf("%s/applicants/%s", c.baseURL, url.PathEscape(check.ApplicantID))
	return c.http.Do(ctx, http.MethodDelete, endpoint, nil, c.headers(), nil)
}

func ValidateCheck(check *Check) string {
	if len(check.ReportIDs) == 0 {
		return "No report_ids found in check"
	}
	if check.Status != "complete" {
		return fmt.Sprintf("Check failed. Status is '%s'. Expected 'complete'.", check.Status)
	}
	if check.Result != "clear" {
		return fmt.Sprintf("Check failed. Result is '%s'. Expected 'clear'.", check.Result)
	}
	return ""
}

// ValidateReports checks that every required report is present and
// complete. Report results are already aggregated into the check result.
func ValidateReports(reports []Report, required []string) string {
	if len(reports) == 0 {
		return "Verification failed. No reports found"
	}
	present := make(map[string]bool, len(reports))
	for _, r := range reports {
		present[r.Name] = true
	}
	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "Verification failed. Missing reports: " + strings.Join(missing, ", ")
	}
	for _, r := range reports {
		if r.Status != "complete" {
			return fmt.Sprintf("Verification failed. Report status is '%s'. Expected 'complete'.", r.Status)
		}
		if r.Name == documentReport && !identity.IsSupportedCountry(identity.NormalizeCountry(r.Properties.IssuingCountry)) {
			return "Verification failed. Unsupported country " + r.Properties.IssuingCountry
		}
	}
	return ""
}

// Normalize maps the document report onto the canonical identity fields.
// Onfido's address extraction is in beta, so address fields are often empty.
func Normalize(reports []Report, required []string) (*identity.RawIdentityFields, error) {
	if reason := ValidateReports(reports, required); reason != "" {
		return nil, providers.VerificationFailed(provider, reason)
	}
	var doc *Report
	for i := range reports {
		if reports[i].Name == documentReport {
			doc = &reports[i]
			break
		}
	}
	if doc == nil {
		return nil, providers.VerificationFailed(provider, "Verification failed. Missing reports: "+documentReport)
	}
	p := doc.Properties
	dob, err := providers.Birthdate(provider, "properties.date_of_birth", p.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return &identity.RawIdentityFields{
		CountryCode:  identity.NormalizeCountry(p.IssuingCountry),
		FirstName:    p.FirstName,
		MiddleName:   middleName(p),
		LastName:     p.LastName,
		Birthdate:    dob,
		City:         p.City,
		Subdivision:  p.State,
		StreetNumber: identity.ParseUint(p.HouseNumber),
		StreetName:   p.Street,
		StreetUnit:   identity.ParseStreetUnit(p.Unit),
		ZipCode:      p.Postcode,
		CompletedAt:  providers.CompletionDate(p.CreatedAt),
	}, nil
}

func middleName(p ReportProperties) string {
	if p.MiddleName != nil {
		return *p.MiddleName
	}
	if len(p.Barcode) > 0 && p.Barcode[0].MiddleName != nil {
		return *p.Barcode[0].MiddleName
	}
	return ""
}
