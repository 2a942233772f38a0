package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/observability"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SubmitContact stores the contact value the user claims and sends the
// first code to it.
//
// The contact is immutable once stored: a second submission is rejected
// until RequestChangeValue discards it. The resend timer also applies to
// a contact entered after a change, since the send history survives it.
//
// A country rejection is reported on the code step with the contact kept,
// and nothing is generated or sent. A delivery failure discards the contact
// so the user re-enters it.
func (s *Service) SubmitContact(ctx context.Context, flow Flow, subject Subject, raw string) (Step, error) {
	ctx, span := tracer.Start(ctx, "verifier.submit_contact",
		trace.WithAttributes(attribute.String("verifier.type", flow.Type.Name)))
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	value := strings.TrimSpace(raw)
	if err := validateContact(flow, value); err != nil {
		s.reject(ctx, flow, "invalid_input")
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, value, err), err
	}

	sess, err := s.loadSession(ctx, flow, subject)
	if err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, value, err), err
	}
	if sess.Verified {
		err := s.rejectCompleted(ctx, flow, subject)
		recordError(span, err)
		return stepFor(flow, domain.StateVerified, "", err), err
	}
	if sess.HasContact() {
		err := s.rejectResubmit(ctx, flow, sess)
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}
	if now := s.clock.Now().UTC(); !resendAllowed(sess, flow.Config.ResendTimer, now) {
		err := fmt.Errorf("last code sent %s ago: %w", now.Sub(sess.LastSentAt), domain.ErrResendTooSoon)
		s.reject(ctx, flow, "resend_too_soon")
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, value, err), err
	}
	sess.ContactValue = value
	sess.ClearCode()

	if err := s.checkCountry(ctx, flow, subject, sess); err != nil {
		if errors.Is(err, domain.ErrInvalidCountry) {
			s.reject(ctx, flow, "invalid_country")
			if saveErr := s.saveSession(ctx, flow, sess); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
		}
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, value, err), err
	}

	if err := s.issueAndSend(ctx, flow, subject, &sess); err != nil {
		if errors.Is(err, domain.ErrSendFailed) {
			logger.WarnContext(ctx, "verifier.send_failed", "type", flow.Type.Name, "error", err)
			sess.Reset()
			if saveErr := s.saveSession(ctx, flow, sess); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
		}
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, value, err), err
	}

	logger.InfoContext(ctx, "verifier.contact_submitted",
		"type", flow.Type.Name, "account_id", subject.AccountID)
	return stepFor(flow, domain.StateAwaitingCode, value, nil), nil
}

// rejectResubmit refuses a contact submission on a session that already
// holds one. Inside the resend timer the caller is told to wait.
func (s *Service) rejectResubmit(ctx context.Context, flow Flow, sess domain.VerificationSession) error {
	now := s.clock.Now().UTC()
	if !resendAllowed(sess, flow.Config.ResendTimer, now) {
		s.reject(ctx, flow, "resend_too_soon")
		return fmt.Errorf("last code sent %s ago: %w", now.Sub(sess.LastSentAt), domain.ErrResendTooSoon)
	}
	s.reject(ctx, flow, "contact_already_set")
	return fmt.Errorf("contact already submitted, change it first: %w", domain.ErrInvalidInput)
}

// issueAndSend generates a fresh code, persists it over any previous one
// and only then dispatches it.
func (s *Service) issueAndSend(ctx context.Context, flow Flow, subject Subject, sess *domain.VerificationSession) error {
	code, err := auth.GenerateCode(flow.Config.CodeLength)
	if err != nil {
		return err
	}
	sess.IssueCode(code, s.clock.Now().UTC(), flow.Config.CodeTTL)

	if err := s.saveSession(ctx, flow, *sess); err != nil {
		return err
	}
	return s.dispatch(ctx, flow, subject, *sess)
}

func validateContact(flow Flow, value string) error {
	if value == "" {
		return fmt.Errorf("contact value is blank: %w", domain.ErrInvalidInput)
	}
	if len(value) > domain.MaxContactLength {
		return fmt.Errorf("contact value exceeds %d bytes: %w", domain.MaxContactLength, domain.ErrInvalidInput)
	}
	if err := validate.Var(value, flow.contactRule()); err != nil {
		return fmt.Errorf("contact value: %w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}
