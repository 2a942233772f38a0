package domain

import "time"

// State is the step of a verification flow a session is in.
type State string

const (
	StateAwaitingContact State = "AWAITING_CONTACT"
	StateAwaitingCode    State = "AWAITING_CODE"
	StateVerified        State = "VERIFIED"
)

// VerificationSession is the per-authentication-attempt verification state.
// At most one code is outstanding at a time: issuing a new one overwrites
// Code, CodeExpiresAt and LastSentAt together.
type VerificationSession struct {
	// ID is the authentication-session identifier the notes are scoped to.
	ID string

	ContactValue  string
	Code          string
	CodeExpiresAt time.Time
	LastSentAt    time.Time

	// Verified marks a completed flow. No operation moves a session out of
	// this state.
	Verified bool
}

// HasContact reports whether a contact value has been submitted.
func (s *VerificationSession) HasContact() bool {
	return s.ContactValue != ""
}

// HasCode reports whether both a code and its expiry are present.
func (s *VerificationSession) HasCode() bool {
	return s.Code != "" && !s.CodeExpiresAt.IsZero()
}

// Expired reports whether the outstanding code is past its expiry.
// The comparison is strict: a code is still valid at exactly CodeExpiresAt.
func (s *VerificationSession) Expired(now time.Time) bool {
	return now.After(s.CodeExpiresAt)
}

// IssueCode records a freshly generated code sent at now.
func (s *VerificationSession) IssueCode(code string, now time.Time, ttl time.Duration) {
	s.Code = code
	s.CodeExpiresAt = now.Add(ttl)
	s.LastSentAt = now
}

// ClearCode discards the outstanding code.
func (s *VerificationSession) ClearCode() {
	s.Code = ""
	s.CodeExpiresAt = time.Time{}
}

// Reset discards the contact value, the code and the send history.
func (s *VerificationSession) Reset() {
	s.ContactValue = ""
	s.ClearCode()
	s.LastSentAt = time.Time{}
	s.Verified = false
}

// Complete clears every field and marks the session verified.
func (s *VerificationSession) Complete() {
	s.Reset()
	s.Verified = true
}

// State derives the flow step from the stored fields.
func (s *VerificationSession) State() State {
	if s.Verified {
		return StateVerified
	}
	if !s.HasContact() {
		return StateAwaitingContact
	}
	return StateAwaitingCode
}
