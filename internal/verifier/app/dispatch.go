package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

// destination resolves where channel delivers for this flow. The contact
// value is used when it is of the channel's kind; otherwise the account's
// stored email or phone is looked up.
func (s *Service) destination(ctx context.Context, flow Flow, subject Subject, sess domain.VerificationSession, channel domain.Courier) (string, error) {
	contactIsEmail := flow.Type.ContactKey == domain.EmailNoteKey

	var attr string
	switch {
	case channel == domain.CourierEmail && contactIsEmail,
		channel == domain.CourierSMS && !contactIsEmail:
		return sess.ContactValue, nil
	case channel == domain.CourierEmail:
		attr = domain.EmailAttribute
	default:
		attr = domain.PhoneNumberAttribute
	}

	value, err := s.accounts.GetAttribute(ctx, subject.AccountID, attr)
	if err != nil {
		return "", fmt.Errorf("look up %s for %s delivery: %w", attr, channel, err)
	}
	return value, nil
}

// dispatch delivers sess.Code on every channel of the flow's courier.
// Each send is bounded by the courier timeout; any failure is ErrSendFailed.
func (s *Service) dispatch(ctx context.Context, flow Flow, subject Subject, sess domain.VerificationSession) error {
	args := []string{
		s.realmName,
		sess.Code,
		strconv.Itoa(int(flow.Config.CodeTTL.Minutes())),
	}

	for _, channel := range flow.Type.Courier.Channels() {
		dest, err := s.destination(ctx, flow, subject, sess, channel)
		if err != nil {
			return errors.Join(domain.ErrSendFailed, err)
		}
		if dest == "" {
			return fmt.Errorf("no %s destination on account: %w", channel, domain.ErrSendFailed)
		}

		msg := auth.Message{
			Channel:     channel,
			Destination: dest,
			Args:        args,
			AccountID:   subject.AccountID,
			SessionID:   subject.SessionID,
			Code:        sess.Code,
		}
		if channel == domain.CourierSMS {
			msg.MessageKey = auth.SMSCodeMessageKey
		} else {
			msg.MessageKey = auth.EmailSubjectKey
			msg.Template = auth.EmailCodeTemplate
		}

		if err := s.send(ctx, msg); err != nil {
			return fmt.Errorf("send %s code: %w", channel, errors.Join(domain.ErrSendFailed, err))
		}
		codesSentTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", flow.Type.Name),
			attribute.String("channel", channel.String()),
		))
	}
	return nil
}

func (s *Service) send(ctx context.Context, msg auth.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.courierTimeout)
	defer cancel()
	return s.courier.Send(ctx, msg)
}
