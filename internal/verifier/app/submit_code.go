package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/observability"
)

// SubmitCode checks a submitted code and, when it is correct, unexpired and
// the contact is not over its reuse limit, binds the contact to the account.
// Success clears the session and leaves it VERIFIED for good.
//
// Wrong codes are retryable without an attempt limit; the code TTL and the
// resend timer bound guessing.
func (s *Service) SubmitCode(ctx context.Context, flow Flow, subject Subject, submitted string) (Step, error) {
	ctx, span := tracer.Start(ctx, "verifier.submit_code",
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

	if err := s.checkCode(ctx, flow, subject, sess, submitted); err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}

	if err := s.completeVerification(ctx, flow, subject, sess); err != nil {
		recordError(span, err)
		return stepFor(flow, domain.StateAwaitingCode, sess.ContactValue, err), err
	}

	verificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", flow.Type.Name),
		attribute.String("outcome", "verified"),
	))
	logger.InfoContext(ctx, "verifier.contact_verified",
		"type", flow.Type.Name, "account_id", subject.AccountID)
	return stepFor(flow, domain.StateVerified, sess.ContactValue, nil), nil
}

// checkCode runs every rejection in order: corrupt session, wrong code,
// expiry, then reuse. Reuse is counted only for a correct unexpired code.
func (s *Service) checkCode(ctx context.Context, flow Flow, subject Subject, sess domain.VerificationSession, submitted string) error {
	if !sess.HasCode() {
		s.reject(ctx, flow, "internal_state")
		return fmt.Errorf("session %s has no outstanding code: %w", subject.SessionID, domain.ErrInternalState)
	}

	if !s.codeMatches(flow, sess, submitted) {
		s.reject(ctx, flow, "code_invalid")
		return domain.ErrCodeInvalid
	}

	if sess.Expired(s.clock.Now().UTC()) {
		s.reject(ctx, flow, "code_expired")
		return fmt.Errorf("code expired at %s: %w", sess.CodeExpiresAt.Format("15:04:05"), domain.ErrCodeExpired)
	}

	if err := s.checkReceiverReuse(ctx, flow, sess.ContactValue); err != nil {
		s.reject(ctx, flow, "max_receiver_reuse")
		return err
	}
	return nil
}

// codeMatches accepts the configured test code in test mode, otherwise the
// generated code. A length mismatch never reaches the byte comparison.
func (s *Service) codeMatches(flow Flow, sess domain.VerificationSession, submitted string) bool {
	if flow.Config.TestMode && auth.ConstantTimeEqual([]byte(submitted), []byte(flow.Config.TestModeCode)) {
		return true
	}
	if len(submitted) != flow.Config.CodeLength {
		return false
	}
	return auth.ConstantTimeEqual([]byte(submitted), []byte(sess.Code))
}

func (s *Service) completeVerification(ctx context.Context, flow Flow, subject Subject, sess domain.VerificationSession) error {
	rec := domain.NewCredentialRecord(subject.AccountID, s.clock.Now())
	if err := s.credentials.Create(ctx, rec); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	if err := flow.Save(ctx, s.accounts, subject.AccountID, sess.ContactValue); err != nil {
		return fmt.Errorf("save %s: %w", flow.Type.ContactKey, err)
	}
	if flow.Type.RequiredAction != "" {
		if err := s.accounts.RemoveRequiredAction(ctx, subject.AccountID, flow.Type.RequiredAction); err != nil {
			return fmt.Errorf("remove required action: %w", err)
		}
	}

	sess.Complete()
	return s.saveSession(ctx, flow, sess)
}

func (s *Service) reject(ctx context.Context, flow Flow, reason string) {
	verifyFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", flow.Type.Name),
		attribute.String("reason", reason),
	))
}
