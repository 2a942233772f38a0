package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/sequentech/message-otp/internal/observability"
)

func testOTELConfig() observability.OTELConfig {
	return observability.OTELConfig{
		ServiceName:    "verifier",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	}
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	mp, err := observability.InitMetrics(context.Background(), testOTELConfig())
	require.NoError(t, err)

	counter, err := otel.Meter("test").Int64Counter("verifier.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_ShutdownNilProvider(t *testing.T) {
	mp := &observability.MetricsProvider{}

	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestTelemetry(t *testing.T) {
	tel, err := observability.InitTelemetry(context.Background(), testOTELConfig())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()

	assert.NoError(t, tel.Shutdown(context.Background()))
}
