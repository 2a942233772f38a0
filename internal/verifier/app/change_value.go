package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sequentech/message-otp/internal/domain"
)

// RequestChangeValue discards the contact value and any outstanding code.
// The send history is kept so the resend timer still applies.
func (s *Service) RequestChangeValue(ctx context.Context, flow Flow, subject Subject) (Step, error) {
	ctx, span := tracer.Start(ctx, "verifier.request_change_value",
		trace.WithAttributes(attribute.String("verifier.type", flow.Type.Name)))
	defer span.End()

	sess, err := s.loadSession(ctx, flow, subject)
	if err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, "", err), err
	}
	if sess.Verified {
		err := s.rejectCompleted(ctx, flow, subject)
		recordError(span, err)
		return stepFor(flow, domain.StateVerified, "", err), err
	}

	sess.ContactValue = ""
	sess.ClearCode()
	if err := s.saveSession(ctx, flow, sess); err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingContact, "", err), err
	}
	return stepFor(flow, domain.StateAwaitingContact, "", nil), nil
}
