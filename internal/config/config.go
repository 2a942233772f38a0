// Package config loads the verifier configuration with koanf: compiled
// defaults overridden by environment variables.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/sequentech/message-otp/internal/domain"
)

// Account directory backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Delivery modes. "log" writes codes to the communications log instead of
// sending them.
const (
	DeliveryLive = "live"
	DeliveryLog  = "log"
)

// Ticket key sources.
const (
	TicketKeysAWS       = "aws"
	TicketKeysEphemeral = "ephemeral"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Verifier     VerifierConfig     `koanf:"verifier"`
	Verification VerificationConfig `koanf:"verification"`
	BruteForce   BruteForceConfig   `koanf:"bruteforce"`

	Redis    RedisConfig    `koanf:"redis"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	Postgres PostgresConfig `koanf:"postgres"`
	Accounts AccountsConfig `koanf:"accounts"`
	AWS      AWSConfig      `koanf:"aws"`
	SNS      SNSConfig      `koanf:"sns"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Tickets  TicketsConfig  `koanf:"tickets"`

	OTEL OTELConfig `koanf:"otel"`
}

// VerifierConfig holds listener and delivery settings.
type VerifierConfig struct {
	HTTPPort       int           `koanf:"http_port"`
	GRPCPort       int           `koanf:"grpc_port"`
	RealmName      string        `koanf:"realm_name"`
	Delivery       string        `koanf:"delivery"`
	CourierTimeout time.Duration `koanf:"courier_timeout"`
	NotesTTL       time.Duration `koanf:"notes_ttl"`
}

// VerificationConfig holds the per-type policies.
type VerificationConfig struct {
	Email  TypeConfig `koanf:"email"`
	Mobile TypeConfig `koanf:"mobile"`
}

// TypeConfig is one verification type's policy as it appears in the
// environment.
type TypeConfig struct {
	Courier          string        `koanf:"courier"`
	CodeLength       int           `koanf:"code_length"`
	CodeTTL          time.Duration `koanf:"code_ttl"`
	ResendTimer      time.Duration `koanf:"resend_timer"`
	MaxReceiverReuse int           `koanf:"max_receiver_reuse"`

	// Countries is a "##"-separated list of allowed dialing prefixes.
	Countries string `koanf:"countries"`

	// Attribute names the account attribute holding the contact value.
	// Only the mobile type reads it.
	Attribute string `koanf:"attribute"`

	// ReuseAttribute names the account attribute phone numbers are counted
	// on for the reuse limit. Empty counts on the stock phone attribute.
	ReuseAttribute string `koanf:"reuse_attribute"`

	TestMode     bool   `koanf:"test_mode"`
	TestModeCode string `koanf:"test_mode_code"`
}

// Policy converts the settings into the engine's form.
func (c TypeConfig) Policy() domain.VerificationConfig {
	return domain.VerificationConfig{
		CodeLength:        c.CodeLength,
		CodeTTL:           c.CodeTTL,
		ResendTimer:       c.ResendTimer,
		MaxReceiverReuse:  c.MaxReceiverReuse,
		ValidCountryCodes: domain.ParseCountryCodes(c.Countries),
		TestMode:          c.TestMode,
		TestModeCode:      c.TestModeCode,
	}
}

// BruteForceConfig holds the failed-login lockout policy.
type BruteForceConfig struct {
	Enabled        bool          `koanf:"enabled"`
	FailureFactor  int           `koanf:"failure_factor"`
	WaitIncrement  time.Duration `koanf:"wait_increment"`
	MaxFailureWait time.Duration `koanf:"max_failure_wait"`
	MaxDeltaTime   time.Duration `koanf:"max_delta_time"`

	// Retention bounds how long failure records are kept.
	Retention time.Duration `koanf:"retention"`
}

// Policy converts the settings into the engine's form.
func (c BruteForceConfig) Policy() domain.BruteForcePolicy {
	return domain.BruteForcePolicy{
		Enabled:        c.Enabled,
		FailureFactor:  c.FailureFactor,
		WaitIncrement:  c.WaitIncrement,
		MaxFailureWait: c.MaxFailureWait,
		MaxDeltaTime:   c.MaxDeltaTime,
	}
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string              `koanf:"addr"` // required in prod
	Password domain.SecretString `koanf:"password"`
	DB       int                 `koanf:"db"`
	Timeout  time.Duration       `koanf:"timeout"`
}

// DynamoDBConfig holds DynamoDB configuration.
type DynamoDBConfig struct {
	Endpoint         string        `koanf:"endpoint"` // empty uses the AWS endpoint
	Timeout          time.Duration `koanf:"timeout"`
	AccountsTable    string        `koanf:"accounts_table"`
	AttributesTable  string        `koanf:"attributes_table"`
	CredentialsTable string        `koanf:"credentials_table"`
}

// PostgresConfig holds the Postgres account directory connection.
type PostgresConfig struct {
	DSN      domain.SecretString `koanf:"dsn"`
	MaxConns int32               `koanf:"max_conns"`
	MinConns int32               `koanf:"min_conns"`
	Timeout  time.Duration       `koanf:"timeout"`
}

// AccountsConfig selects the account directory backend.
type AccountsConfig struct {
	Backend string `koanf:"backend"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// SNSConfig holds SMS delivery settings.
type SNSConfig struct {
	SenderID   string        `koanf:"sender_id"`
	MaxRetries uint64        `koanf:"max_retries"`
	RetryBase  time.Duration `koanf:"retry_base"`
}

// SMTPConfig holds email delivery settings.
type SMTPConfig struct {
	Host     string              `koanf:"host"` // required in prod
	Port     int                 `koanf:"port"`
	Username string              `koanf:"username"`
	Password domain.SecretString `koanf:"password"`
	From     string              `koanf:"from"`
}

// TicketsConfig holds flow ticket signing settings.
type TicketsConfig struct {
	// Keys is "aws" (Secrets Manager + SSM) or "ephemeral".
	Keys     string        `koanf:"keys"`
	KeyID    string        `koanf:"key_id"` // required in prod
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	TTL      time.Duration `koanf:"ttl"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string  `koanf:"endpoint"` // empty disables OTLP export
	Insecure    bool    `koanf:"insecure"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

func defaultTypeConfig(courier domain.Courier) TypeConfig {
	return TypeConfig{
		Courier:          string(courier),
		CodeLength:       domain.DefaultCodeLength,
		CodeTTL:          domain.DefaultCodeTTL,
		ResendTimer:      domain.DefaultResendTimer,
		MaxReceiverReuse: domain.DefaultMaxReceiverReuse,
	}
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	mobile := defaultTypeConfig(domain.CourierSMS)
	mobile.Attribute = domain.PhoneNumberAttribute

	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Verifier: VerifierConfig{
			HTTPPort:       8080,
			GRPCPort:       9090,
			RealmName:      "Sequent",
			Delivery:       DeliveryLive,
			CourierTimeout: domain.CourierTimeout,
			NotesTTL:       domain.NotesTTL,
		},
		Verification: VerificationConfig{
			Email:  defaultTypeConfig(domain.CourierEmail),
			Mobile: mobile,
		},
		BruteForce: BruteForceConfig{
			Enabled:        true,
			FailureFactor:  30,
			WaitIncrement:  time.Minute,
			MaxFailureWait: 15 * time.Minute,
			MaxDeltaTime:   12 * time.Hour,
			Retention:      12 * time.Hour,
		},

		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Timeout: domain.RedisTimeout,
		},
		DynamoDB: DynamoDBConfig{
			Timeout:          domain.DynamoDBTimeout,
			AccountsTable:    "accounts",
			AttributesTable:  "account_attributes",
			CredentialsTable: "credentials",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			Timeout:  domain.PostgresTimeout,
		},
		Accounts: AccountsConfig{Backend: BackendDynamoDB},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		SNS: SNSConfig{
			MaxRetries: 3,
			RetryBase:  200 * time.Millisecond,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "no-reply@localhost",
		},
		Tickets: TicketsConfig{
			Keys:     TicketKeysEphemeral,
			KeyID:    "local",
			Issuer:   "message-otp",
			Audience: "verifier",
			TTL:      domain.FlowTicketLifetime,
		},
		OTEL: OTELConfig{Insecure: true},
	}
}

// envKey maps REDIS__ADDR to redis.addr: a double underscore separates
// levels, single underscores stay inside key names.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Load reads environment variables over the compiled defaults and checks
// the keys the environment requires.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRequired fails startup on missing required keys and unknown
// enumerated values.
func validateRequired(cfg *Config) error {
	switch cfg.Accounts.Backend {
	case BackendDynamoDB:
	case BackendPostgres:
		if cfg.Postgres.DSN.IsEmpty() {
			return fmt.Errorf("%w: postgres.dsn", domain.ErrConfigRequired)
		}
	default:
		return fmt.Errorf("accounts.backend %q: %w", cfg.Accounts.Backend, domain.ErrInvalidInput)
	}

	switch cfg.Verifier.Delivery {
	case DeliveryLive, DeliveryLog:
	default:
		return fmt.Errorf("verifier.delivery %q: %w", cfg.Verifier.Delivery, domain.ErrInvalidInput)
	}

	switch cfg.Tickets.Keys {
	case TicketKeysAWS, TicketKeysEphemeral:
	default:
		return fmt.Errorf("tickets.keys %q: %w", cfg.Tickets.Keys, domain.ErrInvalidInput)
	}

	if !cfg.IsProd() {
		return nil
	}

	switch {
	case cfg.Redis.Addr == "":
		return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
	case cfg.SMTP.Host == "":
		return fmt.Errorf("%w: smtp.host", domain.ErrConfigRequired)
	case cfg.Tickets.KeyID == "" || cfg.Tickets.KeyID == "local":
		return fmt.Errorf("%w: tickets.key_id", domain.ErrConfigRequired)
	}
	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
