package observability_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sequentech/message-otp/internal/observability"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
	}{
		{"success: always sample", 0},
		{"success: ratio sampler", 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testOTELConfig()
			cfg.SampleRatio = tt.ratio

			tp, err := observability.InitTracer(context.Background(), cfg)
			require.NoError(t, err)
			assert.NotNil(t, otel.GetTextMapPropagator())

			assert.NoError(t, tp.Shutdown(context.Background()))
		})
	}
}

func TestTracerProvider_ShutdownNilProvider(t *testing.T) {
	tp := &observability.TracerProvider{}

	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceIDFromContext(t *testing.T) {
	t.Run("empty: no active span", func(t *testing.T) {
		assert.Empty(t, observability.TraceIDFromContext(context.Background()))
	})

	t.Run("success: active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
		defer span.End()

		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), observability.TraceIDFromContext(ctx))
	})
}
