package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sequentech/message-otp/internal/domain"
)

// Note keys shared by every verification type. The contact value lives
// under the type's own ContactKey.
const (
	noteCode       = "code"
	noteCodeTTL    = "code_ttl"
	noteLastSentAt = "last_sent_at"
	noteVerified   = "verified"
)

// loadSession reads the notes of subject's session into a typed session.
func (s *Service) loadSession(ctx context.Context, flow Flow, subject Subject) (domain.VerificationSession, error) {
	notes, err := s.notes.Get(ctx, subject.SessionID)
	if err != nil {
		return domain.VerificationSession{}, fmt.Errorf("load notes: %w", err)
	}
	return decodeSession(subject.SessionID, flow.Type.ContactKey, notes)
}

// saveSession writes every present field and removes every absent one.
func (s *Service) saveSession(ctx context.Context, flow Flow, sess domain.VerificationSession) error {
	set, remove := encodeSession(flow.Type.ContactKey, sess)
	if err := s.notes.Update(ctx, sess.ID, set, remove); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}

func decodeSession(id, contactKey string, notes map[string]string) (domain.VerificationSession, error) {
	sess := domain.VerificationSession{
		ID:           id,
		ContactValue: notes[contactKey],
		Code:         notes[noteCode],
		Verified:     notes[noteVerified] == "true",
	}

	var err error
	if sess.CodeExpiresAt, err = decodeMillis(notes, noteCodeTTL); err != nil {
		return domain.VerificationSession{}, err
	}
	if sess.LastSentAt, err = decodeMillis(notes, noteLastSentAt); err != nil {
		return domain.VerificationSession{}, err
	}
	return sess, nil
}

func decodeMillis(notes map[string]string, key string) (t time.Time, err error) {
	raw, ok := notes[key]
	if !ok || raw == "" {
		return t, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return t, fmt.Errorf("note %s=%q: %w", key, raw, domain.ErrInternalState)
	}
	return domain.FromMillis(ms), nil
}

func encodeSession(contactKey string, sess domain.VerificationSession) (set map[string]string, remove []string) {
	set = make(map[string]string, 5)
	put := func(key, value string) {
		if value == "" {
			remove = append(remove, key)
			return
		}
		set[key] = value
	}
	millis := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return strconv.FormatInt(domain.ToMillis(t), 10)
	}

	put(contactKey, sess.ContactValue)
	put(noteCode, sess.Code)
	put(noteCodeTTL, millis(sess.CodeExpiresAt))
	put(noteLastSentAt, millis(sess.LastSentAt))
	if sess.Verified {
		put(noteVerified, "true")
	} else {
		put(noteVerified, "")
	}
	return set, remove
}
