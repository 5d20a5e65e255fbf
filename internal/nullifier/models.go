// Package nullifier is the replay cache for issued credentials. A holder who
// presents the same issuance nullifier within the replay window receives the
// originally signed bundle instead of triggering a second issuance.
package nullifier

import (
	"encoding/json"
	"time"

	"idserver/internal/credentials/leaf"
	"idserver/internal/identity"
	id "idserver/pkg/domain"
)

// DefaultReplayWindow is how long an issuance can be replayed.
const DefaultReplayWindow = 5 * 24 * time.Hour

// Record is one issued credential, keyed by the nullifier the holder chose.
type Record struct {
	IssuanceNullifier  string
	UUID               string
	SessionID          id.SessionID
	Provider           identity.Provider
	ProviderSessionRef string
	Creds              *leaf.Creds
	SignedBundle       json.RawMessage
	CreatedAt          time.Time
}

// LiveAt reports whether the record is still inside the replay window.
func (r *Record) LiveAt(now time.Time, window time.Duration) bool {
	return now.Sub(r.CreatedAt) < window
}
