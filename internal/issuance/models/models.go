// Package models holds the issuance result and the errors the orchestrator
// returns beyond the session and provider ones.
package models

import (
	"encoding/json"
	"fmt"

	"idserver/internal/credentials/leaf"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

// Issuance is a signed credential and the metadata it commits to.
type Issuance struct {
	SessionID id.SessionID
	Bundle    json.RawMessage
	Creds     *leaf.Creds
	// Replayed is set when the bundle came from the replay cache.
	Replayed bool
}

// Response renders the holder-facing body: the signer's object with the
// credential metadata added under "metadata".
func (i *Issuance) Response() (json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(i.Bundle, &body); err != nil {
		return nil, fmt.Errorf("decode signed bundle: %w", err)
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}
	metadata, err := json.Marshal(i.Creds)
	if err != nil {
		return nil, fmt.Errorf("encode credential metadata: %w", err)
	}
	body["metadata"] = metadata
	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode issuance response: %w", err)
	}
	return out, nil
}

// SybilCollisionError is returned when the identity already holds a live
// registration from another session.
type SybilCollisionError struct {
	ExistingID id.VerificationID
}

func (e *SybilCollisionError) Error() string {
	return fmt.Sprintf("User has already registered. User ID: %s", e.ExistingID)
}

func (e *SybilCollisionError) ErrorCode() dErrors.Code { return dErrors.CodeDuplicateIdentity }
