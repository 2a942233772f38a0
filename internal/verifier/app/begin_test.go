package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/message-otp/internal/domain"
)

func TestBeginOrResume(t *testing.T) {
	ctx := context.Background()

	t.Run("awaiting contact: fresh session", func(t *testing.T) {
		f := newFixture(t)

		step, err := f.svc.BeginOrResume(ctx, emailFlow(), testSubject)
		require.NoError(t, err)
		assert.Equal(t, domain.StateAwaitingContact, step.State)
		assert.Empty(t, step.MessageKey)
	})

	t.Run("awaiting code: contact already submitted", func(t *testing.T) {
		f := newFixture(t)
		f.notes.put(testSessionID, map[string]string{"email": "user@example.com"})

		step, err := f.svc.BeginOrResume(ctx, emailFlow(), testSubject)
		require.NoError(t, err)
		assert.Equal(t, domain.StateAwaitingCode, step.State)
		assert.Equal(t, "user@example.com", step.Contact)
	})

	t.Run("idempotent: repeated calls never write", func(t *testing.T) {
		f := newFixture(t)
		notes := map[string]string{
			"email":        "user@example.com",
			"code":         "123456",
			"code_ttl":     "1768478700000",
			"last_sent_at": "1768478400000",
		}
		f.notes.put(testSessionID, notes)

		for range 3 {
			_, err := f.svc.BeginOrResume(ctx, emailFlow(), testSubject)
			require.NoError(t, err)
		}
		assert.Zero(t, f.notes.updates)
		assert.Equal(t, notes, f.notes.snapshot(testSessionID))
	})

	t.Run("notes are scoped to the flow's contact key", func(t *testing.T) {
		f := newFixture(t)
		f.notes.put(testSessionID, map[string]string{"email": "user@example.com"})

		step, err := f.svc.BeginOrResume(ctx, mobileFlow(), testSubject)
		require.NoError(t, err)
		assert.Equal(t, domain.StateAwaitingContact, step.State)
	})

	t.Run("internal state: malformed ttl note", func(t *testing.T) {
		f := newFixture(t)
		f.notes.put(testSessionID, map[string]string{"email": "user@example.com", "code_ttl": "soon"})

		step, err := f.svc.BeginOrResume(ctx, emailFlow(), testSubject)
		assert.ErrorIs(t, err, domain.ErrInternalState)
		assert.True(t, domain.IsFlowEnding(err))
		assert.Equal(t, "emailOtp.auth.error.internalError", step.MessageKey)
	})

	t.Run("error: note store unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.notes.getErr = errors.Join(errors.New("dial tcp: refused"), domain.ErrUnavailable)

		_, err := f.svc.BeginOrResume(ctx, emailFlow(), testSubject)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}
