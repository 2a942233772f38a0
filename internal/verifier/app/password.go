package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/observability"
)

// CheckPassword gates password-authenticated flows behind the tenant's
// brute-force policy. A locked account is rejected without comparing the
// password. Blank and wrong passwords are recorded as failures while the
// policy is enabled; a correct one clears the record.
func (s *Service) CheckPassword(ctx context.Context, policy domain.BruteForcePolicy, accountID string, password domain.SecretString) error {
	ctx, span := tracer.Start(ctx, "verifier.check_password")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	if accountID == "" {
		err := fmt.Errorf("account ID is required: %w", domain.ErrInvalidInput)
		recordError(span, err)
		return err
	}

	if policy.Enabled {
		rec, err := s.loginFailures.Get(ctx, accountID)
		if err != nil {
			err = fmt.Errorf("get login failures: %w", err)
			recordError(span, err)
			return err
		}
		if wait := policy.RemainingLockout(rec, s.clock.Now()); wait > 0 {
			loginLockoutsTotal.Add(ctx, 1)
			logger.InfoContext(ctx, "verifier.login_locked",
				"account_id", accountID, "failures", rec.NumFailures, "remaining", wait)
			err := fmt.Errorf("locked for another %s: %w", wait, domain.ErrTemporarilyDisabled)
			recordError(span, err)
			return err
		}
	}

	if password.IsEmpty() {
		err := fmt.Errorf("password is blank: %w", domain.ErrInvalidInput)
		err = s.recordLoginFailure(ctx, policy, accountID, err)
		s.countPasswordCheck(ctx, "blank")
		recordError(span, err)
		return err
	}

	ok, err := s.passwords.VerifyPassword(ctx, accountID, password)
	if err != nil {
		err = fmt.Errorf("verify password: %w", err)
		recordError(span, err)
		return err
	}
	if !ok {
		err := s.recordLoginFailure(ctx, policy, accountID, domain.ErrUnauthorized)
		s.countPasswordCheck(ctx, "mismatch")
		recordError(span, err)
		return err
	}

	if policy.Enabled {
		if err := s.loginFailures.Clear(ctx, accountID); err != nil {
			logger.WarnContext(ctx, "verifier.clear_login_failures_failed",
				"account_id", accountID, "error", err)
		}
	}
	s.countPasswordCheck(ctx, "success")
	return nil
}

// recordLoginFailure records a failed attempt and returns cause, joined
// with the store error if recording failed.
func (s *Service) recordLoginFailure(ctx context.Context, policy domain.BruteForcePolicy, accountID string, cause error) error {
	if !policy.Enabled {
		return cause
	}
	if err := s.loginFailures.RecordFailure(ctx, accountID, s.clock.Now()); err != nil {
		return fmt.Errorf("%w (record failure: %w)", cause, err)
	}
	return cause
}

func (s *Service) countPasswordCheck(ctx context.Context, outcome string) {
	passwordChecksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
