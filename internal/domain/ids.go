// Package domain contains pure verification types and policies.
// It holds no I/O; adapters and the app layer depend on it, never the reverse.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies an authentication session. Verification notes are
// scoped to it.
type SessionID struct {
	value string
}

// NewSessionID creates a SessionID from a raw string, validating it is a valid UUID.
func NewSessionID(raw string) (SessionID, error) {
	if raw == "" {
		return SessionID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return SessionID{}, fmt.Errorf("invalid session ID %q: %w", raw, ErrInvalidID)
	}
	return SessionID{value: raw}, nil
}

// MustSessionID creates a SessionID, panicking on invalid input. Use only in tests.
func MustSessionID(raw string) SessionID {
	id, err := NewSessionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateSessionID creates a new random SessionID.
func GenerateSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

func (id SessionID) String() string { return id.value }
func (id SessionID) IsZero() bool   { return id.value == "" }

// CredentialID identifies a stored credential.
type CredentialID struct {
	value string
}

// NewCredentialID creates a CredentialID from a raw string, validating it is a valid UUID.
func NewCredentialID(raw string) (CredentialID, error) {
	if raw == "" {
		return CredentialID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return CredentialID{}, fmt.Errorf("invalid credential ID %q: %w", raw, ErrInvalidID)
	}
	return CredentialID{value: raw}, nil
}

// GenerateCredentialID creates a new random CredentialID.
func GenerateCredentialID() CredentialID {
	return CredentialID{value: uuid.NewString()}
}

func (id CredentialID) String() string { return id.value }
func (id CredentialID) IsZero() bool   { return id.value == "" }
