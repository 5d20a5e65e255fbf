// Package identity holds the canonical identity record every IDV vendor
// payload is normalized into, plus the closed set of supported vendors.
package identity

import (
	"strings"

	dErrors "idserver/pkg/domain-errors"
)

// Provider is an IDV vendor. The set is closed.
type Provider string

const (
	ProviderVeriff  Provider = "veriff"
	ProviderOnfido  Provider = "onfido"
	ProviderIDenfy  Provider = "idenfy"
	ProviderFaceTec Provider = "facetec"
)

var providers = []Provider{ProviderVeriff, ProviderOnfido, ProviderIDenfy, ProviderFaceTec}

// Providers lists every supported vendor.
func Providers() []Provider {
	return append([]Provider(nil), providers...)
}

func (p Provider) IsValid() bool {
	for _, known := range providers {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string { return string(p) }

// ParseProvider accepts a vendor name case-insensitively.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return "", dErrors.New(dErrors.CodeValidation, "idvProvider is required")
	}
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported idvProvider: "+s)
	}
	return p, nil
}

// RawIdentityFields is the normalized output of a successful verification.
// Dates are YYYY-MM-DD. Absent text is the empty string; absent numbers are 0.
type RawIdentityFields struct {
	CountryCode    string `json:"countryCode"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Birthdate      string `json:"birthdate"`
	City           string `json:"city"`
	Subdivision    string `json:"subdivision"`
	StreetNumber   uint64 `json:"streetNumber"`
	StreetName     string `json:"streetName"`
	StreetUnit     uint64 `json:"streetUnit"`
	ZipCode        string `json:"zipCode"`
	ExpirationDate string `json:"expirationDate"`
	CompletedAt    string `json:"completedAt"`
}

// Populated reports which Sybil-relevant fields carried a value. It feeds
// collision diagnostics without recording the values themselves.
func (f RawIdentityFields) Populated() map[string]bool {
	return map[string]bool{
		"firstName":  f.FirstName != "",
		"lastName":   f.LastName != "",
		"zipCode":    f.ZipCode != "",
		"birthdate":  f.Birthdate != "",
		"middleName": f.MiddleName != "",
	}
}
