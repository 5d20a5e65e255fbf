// Package payments holds the in-process payment collaborators: a format
// check for payment references and an HTTP client for the refund service.
// Capturing PayPal orders and validating transactions on chain happen
// elsewhere.
package payments

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"idserver/internal/session/models"
	dErrors "idserver/pkg/domain-errors"
)

var (
	addressPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	paypalOrderPattern = regexp.MustCompile(`^[A-Z0-9]{10,32}$`)
)

// FormatVerifier checks that a payment reference is well formed and, for
// on-chain payments, sent on a supported chain.
type FormatVerifier struct {
	chains []int64
}

func NewFormatVerifier(supportedChainIDs []int64) *FormatVerifier {
	return &FormatVerifier{chains: slices.Clone(supportedChainIDs)}
}

func (v *FormatVerifier) Verify(_ context.Context, p models.Payment) error {
	switch {
	case p.TxHash != "":
		if !slices.Contains(v.chains, p.ChainID) {
			return dErrors.New(dErrors.CodeValidation, "Missing chainId. chainId must be one of "+v.chainList())
		}
		if !models.IsTxHash(p.TxHash) {
			return dErrors.New(dErrors.CodeValidation, "invalid txHash")
		}
		return nil
	case p.PayPalOrderID != "":
		if !paypalOrderPattern.MatchString(p.PayPalOrderID) {
			return dErrors.New(dErrors.CodeValidation, "invalid paypalOrderId")
		}
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "txHash or paypalOrderId is required")
	}
}

func (v *FormatVerifier) chainList() string {
	parts := make([]string, len(v.chains))
	for i, c := range v.chains {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ", ")
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}
