package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/message-otp/internal/config"
	"github.com/sequentech/message-otp/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, 8080, cfg.Verifier.HTTPPort)
	assert.Equal(t, 9090, cfg.Verifier.GRPCPort)
	assert.Equal(t, config.DeliveryLive, cfg.Verifier.Delivery)
	assert.Equal(t, domain.CourierTimeout, cfg.Verifier.CourierTimeout)

	email := cfg.Verification.Email.Policy()
	assert.Equal(t, domain.DefaultVerificationConfig(), email)
	assert.Equal(t, "EMAIL", cfg.Verification.Email.Courier)
	assert.Equal(t, "SMS", cfg.Verification.Mobile.Courier)
	assert.Equal(t, domain.PhoneNumberAttribute, cfg.Verification.Mobile.Attribute)

	assert.NoError(t, cfg.BruteForce.Policy().Validate())
	assert.Equal(t, config.BackendDynamoDB, cfg.Accounts.Backend)
	assert.Equal(t, domain.DynamoDBTimeout, cfg.DynamoDB.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, domain.RedisTimeout, cfg.Redis.Timeout)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, config.TicketKeysEphemeral, cfg.Tickets.Keys)
	assert.Equal(t, domain.FlowTicketLifetime, cfg.Tickets.TTL)
}

func TestLoad_NestedEnvOverride(t *testing.T) {
	t.Setenv("VERIFICATION__MOBILE__CODE_LENGTH", "8")
	t.Setenv("VERIFICATION__MOBILE__CODE_TTL", "2m")
	t.Setenv("VERIFICATION__MOBILE__COUNTRIES", "+34## +1 ##")
	t.Setenv("VERIFICATION__EMAIL__TEST_MODE", "true")
	t.Setenv("VERIFICATION__EMAIL__TEST_MODE_CODE", "000000")
	t.Setenv("BRUTEFORCE__FAILURE_FACTOR", "5")
	t.Setenv("SMTP__PASSWORD", "smtp-secret")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	mobile := cfg.Verification.Mobile.Policy()
	assert.Equal(t, 8, mobile.CodeLength)
	assert.Equal(t, 2*time.Minute, mobile.CodeTTL)
	assert.Equal(t, []string{"+34", "+1"}, mobile.ValidCountryCodes)

	email := cfg.Verification.Email.Policy()
	assert.True(t, email.TestMode)
	assert.Equal(t, "000000", email.TestModeCode)
	assert.NoError(t, email.Validate())

	assert.Equal(t, 5, cfg.BruteForce.Policy().FailureFactor)
	assert.Equal(t, "smtp-secret", cfg.SMTP.Password.Expose())
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"local returns true", "local", true},
		{"prod returns false", "prod", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsLocal())
		})
	}
}

func TestIsProd(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"prod returns true", "prod", true},
		{"local returns false", "local", false},
		{"dev returns false", "dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsProd())
		})
	}
}

func setProdEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("REDIS__ADDR", "redis:6379")
	t.Setenv("SMTP__HOST", "smtp.example.com")
	t.Setenv("TICKETS__KEY_ID", "tickets-2026-01")
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
		wantKey string
	}{
		{"error: prod requires redis.addr", map[string]string{"REDIS__ADDR": ""}, domain.ErrConfigRequired, "redis.addr"},
		{"error: prod requires smtp.host", map[string]string{"SMTP__HOST": ""}, domain.ErrConfigRequired, "smtp.host"},
		{"error: prod requires tickets.key_id", map[string]string{"TICKETS__KEY_ID": ""}, domain.ErrConfigRequired, "tickets.key_id"},
		{"error: postgres backend requires dsn", map[string]string{"ACCOUNTS__BACKEND": "postgres"}, domain.ErrConfigRequired, "postgres.dsn"},
		{"error: unknown backend", map[string]string{"ACCOUNTS__BACKEND": "ldap"}, domain.ErrInvalidInput, "accounts.backend"},
		{"error: unknown delivery", map[string]string{"VERIFIER__DELIVERY": "pigeon"}, domain.ErrInvalidInput, "verifier.delivery"},
		{"error: unknown ticket keys", map[string]string{"TICKETS__KEYS": "vault"}, domain.ErrInvalidInput, "tickets.keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setProdEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}

	t.Run("success: local allows missing smtp", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "local")
		t.Setenv("SMTP__HOST", "")

		_, err := config.Load(context.Background())

		assert.NoError(t, err)
	})

	t.Run("success: prod with required keys", func(t *testing.T) {
		setProdEnv(t)
		t.Setenv("ACCOUNTS__BACKEND", "postgres")
		t.Setenv("POSTGRES__DSN", "postgres://verifier@db/verifier")

		cfg, err := config.Load(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, config.BackendPostgres, cfg.Accounts.Backend)
	})
}
