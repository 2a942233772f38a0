package domain_test

import (
	"testing"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestShutdownPhasesFitBudget(t *testing.T) {
	total := domain.ShutdownDrainDelay + domain.ShutdownHTTPTimeout + domain.ShutdownOTELTimeout
	assert.LessOrEqual(t, total, domain.GracefulShutdownTimeout)
}

func TestNotesOutliveCodes(t *testing.T) {
	assert.Greater(t, domain.NotesTTL, domain.DefaultCodeTTL)
}
