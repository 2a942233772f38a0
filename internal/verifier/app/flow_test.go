package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

func TestFlowValidate(t *testing.T) {
	require.NoError(t, emailFlow().Validate())
	require.NoError(t, mobileFlow("+34").Validate())

	t.Run("invalid: no save callback", func(t *testing.T) {
		flow := emailFlow()
		flow.Save = nil
		assert.ErrorIs(t, flow.Validate(), domain.ErrInvalidInput)
	})

	t.Run("invalid: bad config", func(t *testing.T) {
		flow := emailFlow()
		flow.Config.CodeLength = 0
		assert.ErrorIs(t, flow.Validate(), domain.ErrInvalidInput)
	})

	t.Run("invalid: no channel", func(t *testing.T) {
		flow := emailFlow()
		flow.Type.Courier = domain.CourierNone
		assert.ErrorIs(t, flow.Validate(), domain.ErrInvalidInput)
	})
}

func TestMobileFlow_CustomAttribute(t *testing.T) {
	flow := app.MobileFlow(domain.DefaultVerificationConfig(), "phone_number")
	assert.Equal(t, "phone_number", flow.Type.ContactKey)
	assert.Equal(t, domain.CourierSMS, flow.Type.Courier)
}
