package domain

import "log/slog"

const redacted = "[REDACTED]"

// SecretString holds a password or key that must never reach a log line.
// Both fmt and slog see a placeholder.
type SecretString string

func (s SecretString) String() string { return redacted }

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

// Expose returns the plaintext. Call it only at the point of use
// (hash comparison, key parsing).
func (s SecretString) Expose() string { return string(s) }

func (s SecretString) IsEmpty() bool { return len(s) == 0 }

// SecretBytes is the byte-slice form of SecretString, used for key material.
type SecretBytes []byte

func (s SecretBytes) String() string { return redacted }

// LogValue implements slog.LogValuer.
func (s SecretBytes) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s SecretBytes) Expose() []byte { return []byte(s) }

func (s SecretBytes) IsEmpty() bool { return len(s) == 0 }

var (
	_ slog.LogValuer = SecretString("")
	_ slog.LogValuer = SecretBytes{}
)
