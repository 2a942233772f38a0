package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

var (
	_ auth.Courier = (*LogCourier)(nil)
	_ auth.Courier = (*RoutingCourier)(nil)
)

// LogCourier renders messages and logs them instead of delivering. The
// code is masked. Intended for local development.
type LogCourier struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewLogCourier creates a log-only courier.
func NewLogCourier(catalog *Catalog, logger *slog.Logger) *LogCourier {
	return &LogCourier{catalog: catalog, logger: logger}
}

func (c *LogCourier) Send(ctx context.Context, msg auth.Message) error {
	var (
		text string
		err  error
	)
	if msg.Template != "" {
		text, err = c.catalog.HTML(msg.Template, msg.Args)
	} else {
		text, err = c.catalog.Text(msg.MessageKey, msg.Args)
	}
	if err != nil {
		return fmt.Errorf("log courier: %w", err)
	}

	c.logger.InfoContext(ctx, "code delivery (log-only)",
		slog.String("channel", msg.Channel.String()),
		slog.String("destination", maskDestination(msg.Destination)),
	)
	communicationsLog(ctx, c.logger, msg, text)
	return nil
}

// RoutingCourier hands each message to the courier registered for its
// channel.
type RoutingCourier struct {
	email auth.Courier
	sms   auth.Courier
}

// NewRoutingCourier routes email and SMS messages. A nil courier rejects
// its channel.
func NewRoutingCourier(email, sms auth.Courier) *RoutingCourier {
	return &RoutingCourier{email: email, sms: sms}
}

func (r *RoutingCourier) Send(ctx context.Context, msg auth.Message) error {
	var next auth.Courier
	switch msg.Channel {
	case domain.CourierEmail:
		next = r.email
	case domain.CourierSMS:
		next = r.sms
	}
	if next == nil {
		return fmt.Errorf("no courier for channel %s: %w", msg.Channel, domain.ErrInvalidInput)
	}
	return next.Send(ctx, msg)
}

// communicationsLog records a delivered message with the code masked.
func communicationsLog(ctx context.Context, logger *slog.Logger, msg auth.Message, body string) {
	logger.InfoContext(ctx, "verification code sent",
		slog.String("channel", msg.Channel.String()),
		slog.String("account_id", msg.AccountID),
		slog.String("session_id", msg.SessionID),
		slog.String("body", auth.MaskCode(body, msg.Code)),
	)
}

// maskDestination keeps the last four characters of a phone number or
// the domain of an email address.
func maskDestination(dest string) string {
	if at := strings.LastIndexByte(dest, '@'); at >= 0 {
		return "***" + dest[at:]
	}
	if len(dest) <= 4 {
		return "****"
	}
	return "***" + dest[len(dest)-4:]
}
