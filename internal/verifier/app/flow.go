package app

import (
	"context"
	"fmt"

	"github.com/sequentech/message-otp/internal/domain"
)

// SaveFunc persists a verified contact value on the account.
type SaveFunc func(ctx context.Context, accounts AccountDirectory, accountID, value string) error

// SaveEmail stores value as the account's verified email.
func SaveEmail(ctx context.Context, accounts AccountDirectory, accountID, value string) error {
	return accounts.SetEmail(ctx, accountID, value, true)
}

// SaveAttribute stores value in the named account attribute.
func SaveAttribute(name string) SaveFunc {
	return func(ctx context.Context, accounts AccountDirectory, accountID, value string) error {
		return accounts.SetAttribute(ctx, accountID, name, value)
	}
}

// Flow is everything that differs between verification types.
type Flow struct {
	Type   domain.VerificationType
	Config domain.VerificationConfig
	Save   SaveFunc

	// ContactRule is a go-playground/validator tag applied to submitted
	// contact values. Empty selects a rule from the contact key.
	ContactRule string

	// ReuseAttribute is the account attribute phone numbers are counted on
	// for the reuse limit, independent of where the flow saves its value.
	// Empty counts on domain.PhoneNumberAttribute.
	ReuseAttribute string
}

// Validate checks that the flow can run.
func (f Flow) Validate() error {
	if err := f.Type.Validate(); err != nil {
		return err
	}
	if err := f.Config.Validate(); err != nil {
		return fmt.Errorf("flow %q: %w", f.Type.Name, err)
	}
	if f.Save == nil {
		return fmt.Errorf("flow %q has no save callback: %w", f.Type.Name, domain.ErrInvalidInput)
	}
	return nil
}

func (f Flow) contactRule() string {
	switch {
	case f.ContactRule != "":
		return f.ContactRule
	case f.Type.ContactKey == domain.EmailNoteKey:
		return "email,max=320"
	default:
		return "e164"
	}
}

// EmailFlow is the reset-email flow with the stock email save callback.
func EmailFlow(cfg domain.VerificationConfig) Flow {
	return Flow{Type: domain.ResetEmailType(), Config: cfg, Save: SaveEmail}
}

// MobileFlow is the reset-mobile flow storing the number in attr.
func MobileFlow(cfg domain.VerificationConfig, attr string) Flow {
	vt := domain.ResetMobileType(attr)
	return Flow{Type: vt, Config: cfg, Save: SaveAttribute(vt.ContactKey)}
}

// Subject identifies who a flow runs for.
type Subject struct {
	SessionID string
	AccountID string
}

// Step is what the caller renders next.
type Step struct {
	State   domain.State
	Contact string

	// MessageKey is the localized error key, empty on success.
	MessageKey string
}

func stepFor(flow Flow, state domain.State, contact string, err error) Step {
	return Step{State: state, Contact: contact, MessageKey: flow.Type.MessageKey(err)}
}

// rejectCompleted refuses any further operation on a verified session.
func (s *Service) rejectCompleted(ctx context.Context, flow Flow, subject Subject) error {
	s.reject(ctx, flow, "already_verified")
	return fmt.Errorf("session %s already verified: %w", subject.SessionID, domain.ErrInternalState)
}
