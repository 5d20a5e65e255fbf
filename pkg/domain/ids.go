package domain

import (
	"github.com/google/uuid"

	dErrors "idserver/pkg/domain-errors"
)

// SessionID identifies an IDV session.
type SessionID uuid.UUID

// VerificationID identifies a UserVerification registry record.
type VerificationID uuid.UUID

func (id SessionID) String() string      { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id VerificationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the canonical UUID form so ids serialize as strings.
func (id SessionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id VerificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *VerificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseVerificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewSessionID returns a random session id.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewVerificationID returns a random registry record id.
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

// ParseSessionID parses a non-nil UUID string.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseVerificationID parses a non-nil UUID string.
func ParseVerificationID(s string) (VerificationID, error) {
	u, err := parseUUID(s, "verification id")
	return VerificationID(u), err
}

func parseUUID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be nil")
	}
	return u, nil
}
