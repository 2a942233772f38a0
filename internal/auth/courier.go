package auth

import (
	"context"

	"github.com/sequentech/message-otp/internal/domain"
)

// Message keys and templates for code delivery.
const (
	SMSCodeMessageKey = "messageOtp.sendCode.sms.text"
	EmailSubjectKey   = "messageOtp.sendCode.email.subject"
	EmailCodeTemplate = "send-code-email.ftl"
)

// Message is one code delivery on a single channel.
type Message struct {
	Channel     domain.Courier // CourierEmail or CourierSMS
	Destination string
	MessageKey  string
	Template    string // email only
	Args        []string

	// Context for audit and rendering.
	AccountID string
	SessionID string
	Code      string // masked out of anything that is logged
}

// Courier delivers a rendered code message. Implementations own any
// transport-level retry; callers bound the call with a context deadline.
type Courier interface {
	Send(ctx context.Context, msg Message) error
}
