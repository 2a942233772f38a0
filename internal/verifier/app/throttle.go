package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sequentech/message-otp/internal/domain"
)

// resendAllowed reports whether the resend timer has elapsed since the
// last send. A session that never sent is always eligible.
func resendAllowed(sess domain.VerificationSession, timer time.Duration, now time.Time) bool {
	if sess.LastSentAt.IsZero() {
		return true
	}
	return now.Sub(sess.LastSentAt) >= timer
}

// countAccountsUsing counts accounts already holding value on the
// channels of the flow's courier. For BOTH the email and phone counts are
// summed.
func (s *Service) countAccountsUsing(ctx context.Context, flow Flow, value string) (int, error) {
	courier := flow.Type.Courier
	total := 0
	if courier.UsesEmail() {
		n, err := s.accounts.CountByEmail(ctx, value)
		if err != nil {
			return 0, fmt.Errorf("count accounts by email: %w", err)
		}
		total += n
	}
	if courier.UsesSMS() {
		n, err := s.accounts.CountByAttribute(ctx, phoneAttribute(flow), value)
		if err != nil {
			return 0, fmt.Errorf("count accounts by phone: %w", err)
		}
		total += n
	}
	return total, nil
}

// phoneAttribute is the account attribute phone numbers are counted on.
func phoneAttribute(flow Flow) string {
	if flow.ReuseAttribute != "" {
		return flow.ReuseAttribute
	}
	return domain.PhoneNumberAttribute
}

// checkReceiverReuse rejects a contact value already used by
// MaxReceiverReuse or more accounts.
func (s *Service) checkReceiverReuse(ctx context.Context, flow Flow, value string) error {
	if !flow.Config.ReuseCheckEnabled() {
		return nil
	}
	n, err := s.countAccountsUsing(ctx, flow, value)
	if err != nil {
		return err
	}
	if n >= flow.Config.MaxReceiverReuse {
		return fmt.Errorf("%d accounts use this contact, limit %d: %w",
			n, flow.Config.MaxReceiverReuse, domain.ErrMaxReceiverReuse)
	}
	return nil
}

// checkCountry validates the SMS destination of an SMS or BOTH flow
// against the configured country prefixes.
func (s *Service) checkCountry(ctx context.Context, flow Flow, subject Subject, sess domain.VerificationSession) error {
	if !flow.Type.Courier.UsesSMS() || len(flow.Config.ValidCountryCodes) == 0 {
		return nil
	}
	phone, err := s.destination(ctx, flow, subject, sess, domain.CourierSMS)
	if err != nil {
		return err
	}
	if !domain.MatchesCountry(phone, flow.Config.ValidCountryCodes) {
		return fmt.Errorf("phone prefix not in %v: %w", flow.Config.ValidCountryCodes, domain.ErrInvalidCountry)
	}
	return nil
}
