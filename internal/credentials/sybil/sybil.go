// Package sybil derives the deterministic identity fingerprints used to
// refuse a second credential for the same person.
//
// Fingerprint schemes are versioned and evaluated in order. Every scheme
// that was ever used to write registry entries must stay in Schemes, since
// lookups OR across all of them.
package sybil

import (
	"crypto/sha256"
	"encoding/hex"

	"idserver/internal/identity"
)

// Scheme names a fingerprint derivation.
type Scheme string

const (
	// SchemeLegacy hashes name, postal code and date of birth.
	SchemeLegacy Scheme = "legacy"
	// SchemeGovID hashes name and date of birth only.
	SchemeGovID Scheme = "govid_v2"
)

// Inputs are the identity constituents of a fingerprint. Absent values are "".
type Inputs struct {
	FirstName   string
	LastName    string
	PostalCode  string
	DateOfBirth string
}

// InputsFrom selects fingerprint constituents from normalized fields.
func InputsFrom(f identity.RawIdentityFields) Inputs {
	return Inputs{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		PostalCode:  f.ZipCode,
		DateOfBirth: f.Birthdate,
	}
}

// Fingerprint is one scheme's output.
type Fingerprint struct {
	Scheme Scheme
	Value  string
}

// Fingerprints is the ordered output of every scheme.
type Fingerprints []Fingerprint

// Get returns the value for scheme, or "".
func (fs Fingerprints) Get(scheme Scheme) string {
	for _, f := range fs {
		if f.Scheme == scheme {
			return f.Value
		}
	}
	return ""
}

// Values returns every fingerprint value in scheme order.
func (fs Fingerprints) Values() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Value
	}
	return out
}

type scheme struct {
	name   Scheme
	derive func(Inputs) string
}

var schemes = []scheme{
	{name: SchemeLegacy, derive: func(in Inputs) string {
		return LegacyUUID(in.FirstName, in.LastName, in.PostalCode, in.DateOfBirth)
	}},
	{name: SchemeGovID, derive: func(in Inputs) string {
		return GovIDUUID(in.FirstName, in.LastName, in.DateOfBirth)
	}},
}

// Schemes lists the active schemes in evaluation order.
func Schemes() []Scheme {
	out := make([]Scheme, len(schemes))
	for i, s := range schemes {
		out[i] = s.name
	}
	return out
}

// Derive evaluates every scheme over in.
func Derive(in Inputs) Fingerprints {
	out := make(Fingerprints, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, Fingerprint{Scheme: s.name, Value: s.derive(in)})
	}
	return out
}

// LegacyUUID is hex(sha256(firstName ∥ lastName ∥ postalCode ∥ dob)).
func LegacyUUID(firstName, lastName, postalCode, dob string) string {
	return hashHex(firstName + lastName + postalCode + dob)
}

// GovIDUUID is hex(sha256(firstName ∥ lastName ∥ dob)).
func GovIDUUID(firstName, lastName, dob string) string {
	return hashHex(firstName + lastName + dob)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
