package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/sethvargo/go-retry"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

// snsPublisher is the subset of the SNS client the courier calls.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ auth.Courier = (*SNSCourier)(nil)

// SNSCourierConfig configures SMS delivery.
type SNSCourierConfig struct {
	SenderID   string
	MaxRetries uint64
	// RetryBase is the first backoff step; steps grow as a Fibonacci
	// sequence capped at 5s.
	RetryBase time.Duration
}

// SNSCourier sends SMS codes through Amazon SNS as transactional messages.
type SNSCourier struct {
	client  snsPublisher
	catalog *Catalog
	cfg     SNSCourierConfig
	logger  *slog.Logger
}

// NewSNSCourier creates an SMS courier.
func NewSNSCourier(client snsPublisher, catalog *Catalog, cfg SNSCourierConfig, logger *slog.Logger) *SNSCourier {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	return &SNSCourier{client: client, catalog: catalog, cfg: cfg, logger: logger}
}

// Send publishes msg to its phone number. Throttling and SNS internal
// errors are retried until ctx expires or retries run out.
func (c *SNSCourier) Send(ctx context.Context, msg auth.Message) error {
	if msg.Channel != domain.CourierSMS {
		return fmt.Errorf("sns courier: channel %s: %w", msg.Channel, domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "sns.publish")
	defer span.End()

	text, err := c.catalog.Text(msg.MessageKey, msg.Args)
	if err != nil {
		return fmt.Errorf("sns courier: %w", err)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.Destination),
		Message:     aws.String(text),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if c.cfg.SenderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(c.cfg.SenderID),
		}
	}

	b := retry.NewFibonacci(c.cfg.RetryBase)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxRetries(c.cfg.MaxRetries, b)

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		_, err := c.client.Publish(ctx, input)
		if err != nil && isTransientSNS(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("sns courier: publish to %s: %w", maskDestination(msg.Destination), err)
	}

	communicationsLog(ctx, c.logger, msg, text)
	return nil
}

func isTransientSNS(err error) bool {
	var throttled *snstypes.ThrottledException
	var internal *snstypes.InternalErrorException
	return errors.As(err, &throttled) || errors.As(err, &internal)
}
