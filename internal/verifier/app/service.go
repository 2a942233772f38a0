// Package app implements the contact verification state machine and the
// password brute-force guard on top of narrow storage and delivery ports.
package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

var tracer = otel.Tracer("verifier/app")

var (
	codesSentTotal      metric.Int64Counter
	verificationsTotal  metric.Int64Counter
	verifyFailuresTotal metric.Int64Counter
	passwordChecksTotal metric.Int64Counter
	loginLockoutsTotal  metric.Int64Counter
)

func init() {
	m := otel.Meter("verifier/app")

	codesSentTotal, _ = m.Int64Counter("verifier_codes_sent_total",
		metric.WithDescription("Total verification codes dispatched"))
	verificationsTotal, _ = m.Int64Counter("verifier_verifications_total",
		metric.WithDescription("Total code submissions by outcome"))
	verifyFailuresTotal, _ = m.Int64Counter("security_verification_failures_total",
		metric.WithDescription("Total rejected verification attempts"))
	passwordChecksTotal, _ = m.Int64Counter("verifier_password_checks_total",
		metric.WithDescription("Total password checks by outcome"))
	loginLockoutsTotal, _ = m.Int64Counter("security_login_lockouts_total",
		metric.WithDescription("Total password checks rejected by brute-force lockout"))
}

// NoteStore is the key/value note store scoped to one authentication session.
// Update applies set and remove together.
type NoteStore interface {
	Get(ctx context.Context, sessionID string) (map[string]string, error)
	Update(ctx context.Context, sessionID string, set map[string]string, remove []string) error
}

// AccountDirectory reads and writes account contact data.
type AccountDirectory interface {
	// CountByEmail counts accounts whose email equals email exactly.
	CountByEmail(ctx context.Context, email string) (int, error)
	// CountByAttribute counts accounts with attribute name set to value.
	CountByAttribute(ctx context.Context, name, value string) (int, error)
	// GetAttribute returns "" when the attribute is unset. The name
	// domain.EmailAttribute reads the account email.
	GetAttribute(ctx context.Context, accountID, name string) (string, error)
	SetAttribute(ctx context.Context, accountID, name, value string) error
	SetEmail(ctx context.Context, accountID, email string, verified bool) error
	RemoveRequiredAction(ctx context.Context, accountID, action string) error
}

// CredentialStore persists OTP setup markers.
type CredentialStore interface {
	Create(ctx context.Context, rec domain.CredentialRecord) error
	ExistsByType(ctx context.Context, accountID, credType string) (bool, error)
	DeleteByType(ctx context.Context, accountID, credType string) (int, error)
}

// LoginFailureStore holds consecutive password failures per account.
type LoginFailureStore interface {
	Get(ctx context.Context, accountID string) (domain.LoginFailureRecord, error)
	RecordFailure(ctx context.Context, accountID string, at time.Time) error
	Clear(ctx context.Context, accountID string) error
}

// PasswordVerifier checks an account password in constant time.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, accountID string, password domain.SecretString) (bool, error)
}

// ServiceConfig holds the dependencies for Service.
type ServiceConfig struct {
	Notes         NoteStore
	Accounts      AccountDirectory
	Credentials   CredentialStore
	LoginFailures LoginFailureStore
	Passwords     PasswordVerifier
	Courier       auth.Courier
	Clock         domain.Clock
	Logger        *slog.Logger

	// RealmName is the first argument of every code message.
	RealmName      string
	CourierTimeout time.Duration
}

// Service runs verification flows. It holds no per-request state; the flow
// definition and subject are passed to every operation.
type Service struct {
	notes          NoteStore
	accounts       AccountDirectory
	credentials    CredentialStore
	loginFailures  LoginFailureStore
	passwords      PasswordVerifier
	courier        auth.Courier
	clock          domain.Clock
	logger         *slog.Logger
	realmName      string
	courierTimeout time.Duration
}

// NewService creates a Service. A zero CourierTimeout selects
// domain.CourierTimeout.
func NewService(cfg ServiceConfig) *Service {
	timeout := cfg.CourierTimeout
	if timeout <= 0 {
		timeout = domain.CourierTimeout
	}
	return &Service{
		notes:          cfg.Notes,
		accounts:       cfg.Accounts,
		credentials:    cfg.Credentials,
		loginFailures:  cfg.LoginFailures,
		passwords:      cfg.Passwords,
		courier:        cfg.Courier,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		realmName:      cfg.RealmName,
		courierTimeout: timeout,
	}
}
