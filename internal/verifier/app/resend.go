package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/observability"
)

// RequestResend replaces the outstanding code with a new one and sends it,
// once the resend timer has elapsed since the last send.
func (s *Service) RequestResend(ctx context.Context, flow Flow, subject Subject) (Step, error) {
	ctx, span := tracer.Start(ctx, "verifier.request_resend",
		trace.WithAttributes(attribute.String("verifier.type", flow.Type.Name)))
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	sess, err := s.loadSession(ctx, flow, subject)
	if err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, "", err), err
	}
	if sess.Verified {
		err := s.rejectCompleted(ctx, flow, subject)
		recordError(span, err)
		return stepFor(flow, domain.StateVerified, "", err), err
	}
	if !sess.HasContact() {
		return stepFor(flow, domain.StateAwaitingContact, "", nil), nil
	}

	now := s.clock.Now().UTC()
	if !resendAllowed(sess, flow.Config.ResendTimer, now) {
		err := fmt.Errorf("last code sent %s ago: %w", now.Sub(sess.LastSentAt), domain.ErrResendTooSoon)
		s.reject(ctx, flow, "resend_too_soon")
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}

	if err := s.checkCountry(ctx, flow, subject, sess); err != nil {
		if errors.Is(err, domain.ErrInvalidCountry) {
			s.reject(ctx, flow, "invalid_country")
		}
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}

	if err := s.issueAndSend(ctx, flow, subject, &sess); err != nil {
		if errors.Is(err, domain.ErrSendFailed) {
			logger.WarnContext(ctx, "verifier.resend_failed", "type", flow.Type.Name, "error", err)
		}
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}

	logger.InfoContext(ctx, "verifier.code_resent",
		"type", flow.Type.Name, "account_id", subject.AccountID)
	return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, nil), nil
}
