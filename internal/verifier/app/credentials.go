package app

import (
	"context"
	"fmt"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/observability"
)

// IsConfigured reports whether the account has completed OTP setup.
func (s *Service) IsConfigured(ctx context.Context, accountID string) (bool, error) {
	ok, err := s.credentials.ExistsByType(ctx, accountID, domain.CredentialTypeMessageOTP)
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	return ok, nil
}

// ResetCredentials removes the account's OTP setup markers so the next
// login runs verification again. It returns how many were removed.
func (s *Service) ResetCredentials(ctx context.Context, accountID string) (int, error) {
	ctx, span := tracer.Start(ctx, "verifier.reset_credentials")
	defer span.End()

	n, err := s.credentials.DeleteByType(ctx, accountID, domain.CredentialTypeMessageOTP)
	if err != nil {
		err = fmt.Errorf("delete credentials: %w", err)
		recordError(span, err)
		return 0, err
	}

	observability.WithTraceID(ctx, s.logger).InfoContext(ctx, "verifier.credentials_reset",
		"account_id", accountID, "removed", n)
	return n, nil
}
