package domain_test

import (
	"testing"
	"time"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/stretchr/testify/assert"
)

func bruteForcePolicy() domain.BruteForcePolicy {
	return domain.BruteForcePolicy{
		Enabled:        true,
		FailureFactor:  3,
		WaitIncrement:  10 * time.Second,
		MaxFailureWait: 15 * time.Minute,
	}
}

func TestBruteForcePolicy_WaitTime(t *testing.T) {
	p := bruteForcePolicy()

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 1, want: 10 * time.Second},
		{failures: 3, want: 10 * time.Second},
		{failures: 4, want: 20 * time.Second},
		{failures: 5, want: 40 * time.Second},
		{failures: 9, want: 640 * time.Second},
		{failures: 10, want: 15 * time.Minute},
		{failures: 1_000_000, want: 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, p.WaitTime(tt.failures))
		})
	}

	t.Run("uncapped: saturates instead of overflowing", func(t *testing.T) {
		p := bruteForcePolicy()
		p.MaxFailureWait = 0
		assert.Positive(t, p.WaitTime(500))
	})
}

func TestBruteForcePolicy_Locked(t *testing.T) {
	t0 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	rec := domain.LoginFailureRecord{AccountID: "acct-1", NumFailures: 3, LastFailureAt: t0}

	t.Run("locked: inside wait window", func(t *testing.T) {
		p := bruteForcePolicy()
		assert.True(t, p.Locked(rec, t0.Add(5*time.Second)))
		assert.Equal(t, 5*time.Second, p.RemainingLockout(rec, t0.Add(5*time.Second)))
	})

	t.Run("unlocked: wait window elapsed", func(t *testing.T) {
		assert.False(t, bruteForcePolicy().Locked(rec, t0.Add(11*time.Second)))
	})

	t.Run("unlocked: exactly at window end", func(t *testing.T) {
		assert.False(t, bruteForcePolicy().Locked(rec, t0.Add(10*time.Second)))
	})

	t.Run("unlocked: below failure factor", func(t *testing.T) {
		below := rec
		below.NumFailures = 2
		assert.False(t, bruteForcePolicy().Locked(below, t0.Add(time.Second)))
	})

	t.Run("unlocked: protection disabled", func(t *testing.T) {
		p := bruteForcePolicy()
		p.Enabled = false
		assert.False(t, p.Locked(rec, t0.Add(time.Second)))
	})

	t.Run("locked: max delta window outlasts wait", func(t *testing.T) {
		p := bruteForcePolicy()
		p.MaxDeltaTime = time.Minute
		assert.True(t, p.Locked(rec, t0.Add(30*time.Second)))
		assert.Equal(t, 30*time.Second, p.RemainingLockout(rec, t0.Add(30*time.Second)))
		assert.False(t, p.Locked(rec, t0.Add(61*time.Second)))
	})

	t.Run("unlocked: no failures recorded", func(t *testing.T) {
		assert.False(t, bruteForcePolicy().Locked(domain.LoginFailureRecord{}, t0))
	})
}

func TestBruteForcePolicy_Validate(t *testing.T) {
	assert.NoError(t, domain.BruteForcePolicy{}.Validate(), "disabled policy is always valid")
	assert.NoError(t, bruteForcePolicy().Validate())

	p := bruteForcePolicy()
	p.FailureFactor = 0
	assert.ErrorIs(t, p.Validate(), domain.ErrInvalidInput)

	p = bruteForcePolicy()
	p.MaxDeltaTime = -time.Second
	assert.ErrorIs(t, p.Validate(), domain.ErrInvalidInput)
}
