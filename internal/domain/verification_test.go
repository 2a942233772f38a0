package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVerificationConfig(t *testing.T) {
	cfg := domain.DefaultVerificationConfig()

	assert.Equal(t, 6, cfg.CodeLength)
	assert.Equal(t, 300*time.Second, cfg.CodeTTL)
	assert.Equal(t, 60*time.Second, cfg.ResendTimer)
	assert.Equal(t, 1, cfg.MaxReceiverReuse)
	assert.Empty(t, cfg.ValidCountryCodes)
	assert.True(t, cfg.ReuseCheckEnabled())
	require.NoError(t, cfg.Validate())
}

func TestVerificationConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.VerificationConfig)
	}{
		{name: "zero code length", mutate: func(c *domain.VerificationConfig) { c.CodeLength = 0 }},
		{name: "zero ttl", mutate: func(c *domain.VerificationConfig) { c.CodeTTL = 0 }},
		{name: "negative resend timer", mutate: func(c *domain.VerificationConfig) { c.ResendTimer = -time.Second }},
		{name: "test mode without code", mutate: func(c *domain.VerificationConfig) { c.TestMode = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultVerificationConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidInput)
		})
	}

	t.Run("reuse disabled is valid", func(t *testing.T) {
		cfg := domain.DefaultVerificationConfig()
		cfg.MaxReceiverReuse = 0
		require.NoError(t, cfg.Validate())
		assert.False(t, cfg.ReuseCheckEnabled())
	})
}

func TestVerificationTypes(t *testing.T) {
	email := domain.ResetEmailType()
	require.NoError(t, email.Validate())
	assert.Equal(t, "email", email.ContactKey)
	assert.Equal(t, domain.CourierEmail, email.Courier)

	mobile := domain.ResetMobileType("")
	require.NoError(t, mobile.Validate())
	assert.Equal(t, domain.PhoneNumberAttribute, mobile.ContactKey)
	assert.Equal(t, domain.CourierSMS, mobile.Courier)

	custom := domain.ResetMobileType("phone")
	assert.Equal(t, "phone", custom.ContactKey)

	t.Run("invalid: no channel", func(t *testing.T) {
		vt := domain.ResetEmailType()
		vt.Courier = domain.CourierNone
		assert.ErrorIs(t, vt.Validate(), domain.ErrInvalidInput)
	})

	t.Run("invalid: missing contact key", func(t *testing.T) {
		vt := domain.ResetEmailType()
		vt.ContactKey = ""
		assert.ErrorIs(t, vt.Validate(), domain.ErrInvalidInput)
	})
}

func TestVerificationType_MessageKey(t *testing.T) {
	vt := domain.ResetMobileType("")

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: domain.ErrInvalidInput, want: "mobileOtp.auth.error.invalidInput"},
		{err: domain.ErrInvalidCountry, want: "mobileOtp.auth.error.invalidCountry"},
		{err: fmt.Errorf("sns publish: %w", domain.ErrSendFailed), want: "mobileOtp.auth.error.sendError"},
		{err: domain.ErrResendTooSoon, want: "mobileOtp.auth.error.resendTimer"},
		{err: domain.ErrCodeInvalid, want: "mobileOtp.auth.error.codeInvalid"},
		{err: domain.ErrCodeExpired, want: "mobileOtp.auth.error.codeExpired"},
		{err: domain.ErrMaxReceiverReuse, want: "mobileOtp.auth.error.maxReceiverReuse"},
		{err: domain.ErrTemporarilyDisabled, want: "mobileOtp.auth.error.temporarilyDisabled"},
		{err: domain.ErrInternalState, want: "mobileOtp.auth.error.internalError"},
		{err: errors.New("redis: connection refused"), want: "mobileOtp.auth.error.internalError"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, vt.MessageKey(tt.err))
		})
	}
}
