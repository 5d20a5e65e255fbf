package domain

import (
	"math/big"
	"strings"

	dErrors "idserver/pkg/domain-errors"
)

// IssuanceNullifier is the caller-chosen secret integer that keys the
// replay cache. The original textual form is kept so the signer and the
// cache see exactly what the holder sent.
type IssuanceNullifier struct {
	raw   string
	value *big.Int
}

// ParseIssuanceNullifier accepts a non-negative decimal or 0x-prefixed
// hexadecimal integer.
func ParseIssuanceNullifier(s string) (IssuanceNullifier, error) {
	if s == "" {
		return IssuanceNullifier{}, dErrors.New(dErrors.CodeValidation, "issuance nullifier is required")
	}
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	if digits == "" || strings.ContainsAny(digits, "+-_ ") {
		return IssuanceNullifier{}, dErrors.New(dErrors.CodeValidation, "invalid issuance nullifier")
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok || v.Sign() < 0 {
		return IssuanceNullifier{}, dErrors.New(dErrors.CodeValidation, "invalid issuance nullifier")
	}
	return IssuanceNullifier{raw: s, value: v}, nil
}

// String returns the nullifier exactly as it was supplied.
func (n IssuanceNullifier) String() string { return n.raw }

// Int returns a copy of the numeric value.
func (n IssuanceNullifier) Int() *big.Int {
	if n.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.value)
}

func (n IssuanceNullifier) IsZero() bool { return n.raw == "" }
