package domain

import (
	"fmt"
	"math"
	"time"
)

// BruteForcePolicy is the tenant's failed-login lockout configuration.
type BruteForcePolicy struct {
	Enabled        bool
	FailureFactor  int
	WaitIncrement  time.Duration
	MaxFailureWait time.Duration
	MaxDeltaTime   time.Duration
}

// LoginFailureRecord counts consecutive failed password checks for one
// account. It is owned by the password-check collaborator.
type LoginFailureRecord struct {
	AccountID     string
	NumFailures   int
	LastFailureAt time.Time
}

// Validate checks an enabled policy for values that would lock every login.
func (p BruteForcePolicy) Validate() error {
	if !p.Enabled {
		return nil
	}
	switch {
	case p.FailureFactor <= 0:
		return fmt.Errorf("failure factor must be positive, got %d: %w", p.FailureFactor, ErrInvalidInput)
	case p.WaitIncrement < 0 || p.MaxFailureWait < 0 || p.MaxDeltaTime < 0:
		return fmt.Errorf("brute force durations must not be negative: %w", ErrInvalidInput)
	}
	return nil
}

// WaitTime returns the lockout window after numFailures consecutive
// failures: WaitIncrement up to FailureFactor failures, then doubling per
// extra failure, capped at MaxFailureWait.
func (p BruteForcePolicy) WaitTime(numFailures int) time.Duration {
	wait := p.WaitIncrement
	if numFailures <= p.FailureFactor {
		return wait
	}
	for i := p.FailureFactor; i < numFailures; i++ {
		if p.MaxFailureWait > 0 && wait >= p.MaxFailureWait {
			break
		}
		if wait > math.MaxInt64/2 {
			wait = math.MaxInt64
			break
		}
		wait *= 2
	}
	if p.MaxFailureWait > 0 && wait > p.MaxFailureWait {
		return p.MaxFailureWait
	}
	return wait
}

// Locked reports whether a password check for the account must be rejected
// at now without comparing the password.
func (p BruteForcePolicy) Locked(rec LoginFailureRecord, now time.Time) bool {
	return p.RemainingLockout(rec, now) > 0
}

// RemainingLockout returns how long the account stays locked, or 0.
// Elapsed time is measured in whole milliseconds.
func (p BruteForcePolicy) RemainingLockout(rec LoginFailureRecord, now time.Time) time.Duration {
	if !p.Enabled || rec.NumFailures < p.FailureFactor || rec.NumFailures == 0 {
		return 0
	}

	elapsed := time.Duration(ToMillis(now)-ToMillis(rec.LastFailureAt)) * time.Millisecond

	var remaining time.Duration
	if wait := p.WaitTime(rec.NumFailures); elapsed < wait {
		remaining = wait - elapsed
	}
	if p.MaxDeltaTime > 0 && elapsed < p.MaxDeltaTime {
		remaining = max(remaining, p.MaxDeltaTime-elapsed)
	}
	return remaining
}
