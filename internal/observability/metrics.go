package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsProvider owns the SDK meter provider until Shutdown.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics installs a global meter provider. Instruments created earlier
// through otel.Meter are delegated to it.
func InitMetrics(ctx context.Context, cfg OTELConfig) (*MetricsProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(newResource(cfg))}

	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{provider: provider}, nil
}

// Shutdown flushes pending metrics.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	return mp.provider.Shutdown(ctx)
}

// Telemetry bundles both providers so they start and stop together.
type Telemetry struct {
	tracer  *TracerProvider
	metrics *MetricsProvider
}

// InitTelemetry starts the tracer, then the meter.
func InitTelemetry(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	tp, err := InitTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	mp, err := InitMetrics(ctx, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initialize metrics: %w", err), tp.Shutdown(ctx))
	}
	return &Telemetry{tracer: tp, metrics: mp}, nil
}

// Shutdown stops the meter, then the tracer, and reports both failures.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
	}
	if err := t.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	return errors.Join(errs...)
}
