package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BeginOrResume reports which step the subject's session is on. It never
// writes.
func (s *Service) BeginOrResume(ctx context.Context, flow Flow, subject Subject) (Step, error) {
	ctx, span := tracer.Start(ctx, "verifier.begin_or_resume",
		trace.WithAttributes(attribute.String("verifier.type", flow.Type.Name)))
	defer span.End()

	sess, err := s.loadSession(ctx, flow, subject)
	if err != nil {
		recordError(span, err)
		return stepFor(flow, sess.State(), "", err), err
	}

	span.SetAttributes(attribute.String("verifier.state", string(sess.State())))
	return stepFor(flow, sess.State(), sess.ContactValue, nil), nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
