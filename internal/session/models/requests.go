package models

import (
	"regexp"
	"strings"

	"idserver/internal/identity"
	dErrors "idserver/pkg/domain-errors"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	SigDigest   string `json:"sigDigest"`
	IDVProvider string `json:"idvProvider"`
}

func (r *CreateSessionRequest) Normalize() {
	r.SigDigest = strings.TrimSpace(r.SigDigest)
	r.IDVProvider = strings.ToLower(strings.TrimSpace(r.IDVProvider))
}

func (r *CreateSessionRequest) Validate() (identity.Provider, error) {
	if r.SigDigest == "" {
		return "", dErrors.New(dErrors.CodeValidation, "sigDigest is required")
	}
	return identity.ParseProvider(r.IDVProvider)
}

// PaymentRequest is the body of POST /sessions/{id}/payment.
type PaymentRequest struct {
	TxHash        string `json:"txHash"`
	ChainID       int64  `json:"chainId"`
	PayPalOrderID string `json:"paypalOrderId"`
}

func (r *PaymentRequest) Normalize() {
	r.TxHash = strings.TrimSpace(r.TxHash)
	r.PayPalOrderID = strings.TrimSpace(r.PayPalOrderID)
}

func (r *PaymentRequest) Validate() (Payment, error) {
	switch {
	case r.TxHash != "" && r.PayPalOrderID != "":
		return Payment{}, dErrors.New(dErrors.CodeValidation, "provide either txHash or paypalOrderId, not both")
	case r.TxHash != "":
		if !txHashPattern.MatchString(r.TxHash) {
			return Payment{}, dErrors.New(dErrors.CodeValidation, "txHash must be a 0x-prefixed 32-byte hex string")
		}
		if r.ChainID <= 0 {
			return Payment{}, dErrors.New(dErrors.CodeValidation, "chainId is required with txHash")
		}
		return Payment{TxHash: strings.ToLower(r.TxHash), ChainID: r.ChainID}, nil
	case r.PayPalOrderID != "":
		return Payment{PayPalOrderID: r.PayPalOrderID}, nil
	default:
		return Payment{}, dErrors.New(dErrors.CodeValidation, "txHash or paypalOrderId is required")
	}
}

// AttachProviderSessionRequest is the body of POST /sessions/{id}/idv-session.
type AttachProviderSessionRequest struct {
	ProviderSessionRef string `json:"providerSessionRef"`
}

// FailSessionRequest is the admin body of POST /admin/sessions/{id}/fail.
type FailSessionRequest struct {
	Reason string `json:"reason"`
}

// SetProviderRequest is the admin body of POST /admin/sessions/{id}/idv-provider.
type SetProviderRequest struct {
	IDVProvider string `json:"idvProvider"`
}

// IsTxHash reports whether s looks like an EVM transaction hash.
func IsTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}
