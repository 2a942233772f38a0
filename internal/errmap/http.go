package errmap

import (
	"errors"
	"net/http"

	"github.com/sequentech/message-otp/internal/domain"
)

// HTTPError is the JSON error body of the verifier API.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	// MessageKey is the localized key for verification errors, when known.
	MessageKey string `json:"message_key,omitempty"`
}

func (e HTTPError) Error() string {
	return e.Message
}

type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings is checked in order with errors.Is; the first match wins.
// Flow-ending and lockout errors come first because they may wrap others.
var httpMappings = []httpMapping{
	{domain.ErrInternalState, http.StatusConflict, "FLOW_RESTART_REQUIRED"},
	{domain.ErrTemporarilyDisabled, http.StatusTooManyRequests, "TEMPORARILY_DISABLED"},

	// Verification
	{domain.ErrSendFailed, http.StatusBadGateway, "SEND_FAILED"},
	{domain.ErrResendTooSoon, http.StatusTooManyRequests, "RESEND_TOO_SOON"},
	{domain.ErrCodeInvalid, http.StatusUnauthorized, "INVALID_CODE"},
	{domain.ErrCodeExpired, http.StatusUnauthorized, "CODE_EXPIRED"},
	{domain.ErrMaxReceiverReuse, http.StatusConflict, "MAX_RECEIVER_REUSE"},
	{domain.ErrInvalidCountry, http.StatusBadRequest, "INVALID_COUNTRY"},

	// Resources and auth
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHENTICATED"},

	// Validation
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrEmptyID, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidID, http.StatusBadRequest, "INVALID_ARGUMENT"},

	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error. The message is the
// matched sentinel's text, so wrapped infrastructure details never reach
// clients.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: m.err.Error()}
		}
	}
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}
