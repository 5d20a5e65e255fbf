// Package models holds the Sybil registry records: one UserVerification per
// issued identity, and the collision trail written when a second session
// tries to register the same person.
package models

import (
	"time"

	"idserver/internal/credentials/sybil"
	"idserver/internal/identity"
	id "idserver/pkg/domain"
)

// UserVerification records that an identity has been issued credentials.
type UserVerification struct {
	ID                 id.VerificationID
	UUIDLegacy         string
	UUIDV2             string
	SessionID          id.SessionID
	Provider           identity.Provider
	ProviderSessionRef string
	IssuedAt           time.Time
}

// NewUserVerification builds a registry entry from derived fingerprints.
func NewUserVerification(fps sybil.Fingerprints, sessionID id.SessionID, provider identity.Provider, ref string, now time.Time) *UserVerification {
	return &UserVerification{
		ID:                 id.NewVerificationID(),
		UUIDLegacy:         fps.Get(sybil.SchemeLegacy),
		UUIDV2:             fps.Get(sybil.SchemeGovID),
		SessionID:          sessionID,
		Provider:           provider,
		ProviderSessionRef: ref,
		IssuedAt:           now,
	}
}

// Matches reports whether any of the fingerprints equals this entry's.
func (v *UserVerification) Matches(fps sybil.Fingerprints) bool {
	for _, fp := range fps {
		switch fp.Scheme {
		case sybil.SchemeLegacy:
			if fp.Value != "" && fp.Value == v.UUIDLegacy {
				return true
			}
		case sybil.SchemeGovID:
			if fp.Value != "" && fp.Value == v.UUIDV2 {
				return true
			}
		}
	}
	return false
}

// CollisionMetadata is written when a registration hits an existing entry.
// Populated lists which fingerprint inputs were present, never their values.
type CollisionMetadata struct {
	UUIDLegacy             string
	UUIDV2                 string
	SessionID              id.SessionID
	ProviderSessionRef     string
	ExistingVerificationID id.VerificationID
	Populated              map[string]bool
	OccurredAt             time.Time
}

// DedupCutoff returns the oldest IssuedAt still counted as a live registration.
func DedupCutoff(now time.Time, months int) time.Time {
	return now.AddDate(0, -months, 0)
}
