package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Verification errors. Each maps to one localized message key per
	// verification type (see VerificationType.MessageKey).
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCountry      = errors.New("phone number country is not allowed")
	ErrSendFailed          = errors.New("failed to send verification code")
	ErrResendTooSoon       = errors.New("resend requested before timer elapsed")
	ErrCodeInvalid         = errors.New("invalid verification code")
	ErrCodeExpired         = errors.New("verification code has expired")
	ErrMaxReceiverReuse    = errors.New("contact value used by too many accounts")
	ErrInternalState       = errors.New("verification session is missing code state")
	ErrTemporarilyDisabled = errors.New("account temporarily disabled")

	// Resource errors
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// Authorization errors
	ErrUnauthorized = errors.New("authentication required")

	// Operational errors
	ErrUnavailable = errors.New("service temporarily unavailable")

	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. ErrSendFailed is retryable from the user's
// point of view (an explicit, throttled resend); the engine never retries
// on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrSendFailed) ||
		errors.Is(err, ErrResendTooSoon) ||
		errors.Is(err, ErrTemporarilyDisabled)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrInvalidCountry,
	ErrCodeInvalid,
	ErrCodeExpired,
	ErrMaxReceiverReuse,
	ErrNotFound,
	ErrUnauthorized,
	ErrEmptyID,
	ErrInvalidID,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsFlowEnding reports whether err means the verification session is
// unusable and must be restarted. Every other verification error is
// redisplayed on the current step.
func IsFlowEnding(err error) bool {
	return errors.Is(err, ErrInternalState)
}

// IsNotFound returns true if the error represents a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
