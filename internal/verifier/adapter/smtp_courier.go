package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

var _ auth.Courier = (*SMTPCourier)(nil)

// SMTPConfig configures the SMTP dialer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password domain.SecretString
	From     string
}

// NewSMTPDialer creates the gomail dialer for cfg.
func NewSMTPDialer(cfg SMTPConfig) *gomail.Dialer {
	return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password.Expose())
}

// SMTPCourier sends email codes as HTML mail.
type SMTPCourier struct {
	sender  mailSender
	from    string
	catalog *Catalog
	logger  *slog.Logger
}

// NewSMTPCourier creates an email courier sending from from.
func NewSMTPCourier(sender mailSender, from string, catalog *Catalog, logger *slog.Logger) *SMTPCourier {
	return &SMTPCourier{sender: sender, from: from, catalog: catalog, logger: logger}
}

// Send renders the subject and body and hands the mail to the SMTP server.
// gomail has no context support, so the dial runs in its own goroutine and
// Send returns early when ctx is done.
func (c *SMTPCourier) Send(ctx context.Context, msg auth.Message) error {
	if msg.Channel != domain.CourierEmail {
		return fmt.Errorf("smtp courier: channel %s: %w", msg.Channel, domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "smtp.send")
	defer span.End()

	subject, err := c.catalog.Text(msg.MessageKey, msg.Args[:min(1, len(msg.Args))])
	if err != nil {
		return fmt.Errorf("smtp courier: %w", err)
	}
	body, err := c.catalog.HTML(msg.Template, msg.Args)
	if err != nil {
		return fmt.Errorf("smtp courier: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.Destination)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() {
		done <- c.sender.DialAndSend(m)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("smtp courier: send to %s: %w", maskDestination(msg.Destination), err)
	}

	communicationsLog(ctx, c.logger, msg, body)
	return nil
}
