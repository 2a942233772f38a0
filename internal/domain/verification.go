package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification defaults.
const (
	DefaultCodeLength       = 6
	DefaultCodeTTL          = 300 * time.Second
	DefaultResendTimer      = 60 * time.Second
	DefaultMaxReceiverReuse = 1

	// PhoneNumberAttribute is the account attribute holding a verified
	// mobile number. Cross-account reuse of phone numbers is counted on it.
	PhoneNumberAttribute = "sequent.read-only.mobile-number"

	// EmailNoteKey is the note key the email verification type stores its
	// contact value under.
	EmailNoteKey = "email"

	// EmailAttribute names the account's primary email in attribute lookups.
	EmailAttribute = "email"

	// countryCodeSeparator separates entries of a configured country list.
	countryCodeSeparator = "##"
)

// VerificationConfig holds the per-verification-type policy. It is read-only
// to the engine.
type VerificationConfig struct {
	CodeLength        int
	CodeTTL           time.Duration
	ResendTimer       time.Duration
	MaxReceiverReuse  int // <= 0 disables the reuse check
	ValidCountryCodes []string

	// TestMode accepts TestModeCode in addition to the generated code.
	TestMode     bool
	TestModeCode string
}

// DefaultVerificationConfig returns the compiled defaults.
func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		CodeLength:       DefaultCodeLength,
		CodeTTL:          DefaultCodeTTL,
		ResendTimer:      DefaultResendTimer,
		MaxReceiverReuse: DefaultMaxReceiverReuse,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c VerificationConfig) Validate() error {
	switch {
	case c.CodeLength <= 0:
		return fmt.Errorf("code length must be positive, got %d: %w", c.CodeLength, ErrInvalidInput)
	case c.CodeTTL <= 0:
		return fmt.Errorf("code ttl must be positive, got %s: %w", c.CodeTTL, ErrInvalidInput)
	case c.ResendTimer < 0:
		return fmt.Errorf("resend timer must not be negative, got %s: %w", c.ResendTimer, ErrInvalidInput)
	case c.TestMode && c.TestModeCode == "":
		return fmt.Errorf("test mode requires a test mode code: %w", ErrInvalidInput)
	}
	return nil
}

// ReuseCheckEnabled reports whether cross-account reuse is limited.
func (c VerificationConfig) ReuseCheckEnabled() bool {
	return c.MaxReceiverReuse > 0
}

// ParseCountryCodes splits a "##"-separated country prefix list.
// Blank entries are dropped; an empty result means unrestricted.
func ParseCountryCodes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, countryCodeSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VerificationType describes what differs between verification flows:
// where the contact value is kept, how it is delivered and which message
// keys errors are reported with.
type VerificationType struct {
	Name             string
	ContactKey       string
	Courier          Courier
	MessageKeyPrefix string

	// RequiredAction is removed from the account once verification succeeds.
	RequiredAction string
}

// ResetEmailType is the "reset and configure email OTP" flow.
func ResetEmailType() VerificationType {
	return VerificationType{
		Name:             "reset-email",
		ContactKey:       EmailNoteKey,
		Courier:          CourierEmail,
		MessageKeyPrefix: "emailOtp",
		RequiredAction:   "email-otp-ra",
	}
}

// ResetMobileType is the "reset and configure mobile OTP" flow. attr is the
// note key and account attribute holding the mobile number; empty selects
// PhoneNumberAttribute.
func ResetMobileType(attr string) VerificationType {
	if attr == "" {
		attr = PhoneNumberAttribute
	}
	return VerificationType{
		Name:             "reset-mobile",
		ContactKey:       attr,
		Courier:          CourierSMS,
		MessageKeyPrefix: "mobileOtp",
		RequiredAction:   "mobile-otp-ra",
	}
}

// Validate checks that the type can drive a flow.
func (t VerificationType) Validate() error {
	if t.Name == "" || t.ContactKey == "" || t.MessageKeyPrefix == "" {
		return fmt.Errorf("verification type %q is incomplete: %w", t.Name, ErrInvalidInput)
	}
	if len(t.Courier.Channels()) == 0 {
		return fmt.Errorf("verification type %q has no delivery channel: %w", t.Name, ErrInvalidInput)
	}
	return nil
}

// messageKeySuffixes maps error kinds to their message key suffix.
// Order matters: first match wins (via errors.Is).
var messageKeySuffixes = []struct {
	err    error
	suffix string
}{
	{ErrInvalidInput, "invalidInput"},
	{ErrInvalidCountry, "invalidCountry"},
	{ErrSendFailed, "sendError"},
	{ErrResendTooSoon, "resendTimer"},
	{ErrCodeInvalid, "codeInvalid"},
	{ErrCodeExpired, "codeExpired"},
	{ErrMaxReceiverReuse, "maxReceiverReuse"},
	{ErrTemporarilyDisabled, "temporarilyDisabled"},
	{ErrInternalState, "internalError"},
}

// MessageKey returns the localized message key for err, or "" for nil.
// Errors outside the verification taxonomy map to the internal error key.
func (t VerificationType) MessageKey(err error) string {
	if err == nil {
		return ""
	}
	suffix := "internalError"
	for _, m := range messageKeySuffixes {
		if errors.Is(err, m.err) {
			suffix = m.suffix
			break
		}
	}
	return t.MessageKeyPrefix + ".auth.error." + suffix
}
