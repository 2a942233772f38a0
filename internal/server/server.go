// Package server provides the verifier's lifecycle runner: signal handling,
// config loading, observability init, HTTP and gRPC listeners with health
// checks, and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sequentech/message-otp/internal/config"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/errmap"
	"github.com/sequentech/message-otp/internal/observability"
)

// Check is a named readiness probe, such as a Redis ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Service is what Setup hands back to the runner.
type Service struct {
	// Routes mounts the service's HTTP API.
	Routes func(mux *http.ServeMux)

	// Checks gate /readyz.
	Checks []Check

	// Close releases clients after the listeners have drained.
	Close func() error
}

// Params configures the lifecycle runner.
type Params struct {
	Name    string
	Version string

	// Setup builds the service once config and logging are ready.
	Setup func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error)
}

// Listeners overrides the config ports; nil fields listen on the
// configured port. Tests pass port-0 listeners.
type Listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// Run executes the full service lifecycle and returns once shutdown has
// finished.
func Run(ctx context.Context, p Params, lns Listeners) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// Startup order: telemetry -> service -> listeners.
	telemetry, err := observability.InitTelemetry(ctx, observability.OTELConfig{
		ServiceName:    p.Name,
		ServiceVersion: p.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
		SampleRatio:    cfg.OTEL.SampleRatio,
	})
	if err != nil {
		return err
	}

	svc := &Service{}
	if p.Setup != nil {
		svc, err = p.Setup(ctx, cfg, logger)
		if err != nil {
			return errors.Join(fmt.Errorf("setup %s: %w", p.Name, err), shutdownTelemetry(telemetry))
		}
		if svc == nil {
			svc = &Service{}
		}
	}

	if lns.HTTP == nil {
		if lns.HTTP, err = listen(ctx, cfg.Verifier.HTTPPort); err != nil {
			return err
		}
	}
	if lns.GRPC == nil {
		if lns.GRPC, err = listen(ctx, cfg.Verifier.GRPCPort); err != nil {
			return errors.Join(err, lns.HTTP.Close())
		}
	}

	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if shuttingDown.Load() {
			writeHealth(w, http.StatusServiceUnavailable, p.Name, "shutting_down", nil)
			return
		}
		writeHealth(w, http.StatusOK, p.Name, "healthy", nil)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if shuttingDown.Load() {
			writeHealth(w, http.StatusServiceUnavailable, p.Name, "shutting_down", nil)
			return
		}
		if failed := runChecks(r.Context(), svc.Checks); len(failed) > 0 {
			writeHealth(w, http.StatusServiceUnavailable, p.Name, "not_ready", failed)
			return
		}
		writeHealth(w, http.StatusOK, p.Name, "ready", nil)
	})
	if svc.Routes != nil {
		svc.Routes(mux)
	}

	httpServer := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: domain.CourierTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(errmap.UnaryServerInterceptor()))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(p.Name, healthpb.HealthCheckResponse_SERVING)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", lns.HTTP.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := httpServer.Serve(lns.HTTP); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", serveErr)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting gRPC server", slog.String("addr", lns.GRPC.Addr().String()))
		if serveErr := grpcServer.Serve(lns.GRPC); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", serveErr)
		}
		return nil
	})

	// Shutdown runs in reverse startup order: listeners -> service -> telemetry.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		shuttingDown.Store(true)
		healthServer.Shutdown()

		time.Sleep(domain.ShutdownDrainDelay)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := httpServer.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}
		stopGRPC(httpCtx, grpcServer)

		if svc.Close != nil {
			if closeErr := svc.Close(); closeErr != nil {
				logger.Error("service close error", slog.String("error", closeErr.Error()))
			}
		}

		if shutdownErr := shutdownTelemetry(telemetry); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func listen(ctx context.Context, port int) (net.Listener, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return ln, nil
}

// stopGRPC drains in-flight RPCs, forcing a stop when ctx expires first.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
		<-done
	}
}

func shutdownTelemetry(t *observability.Telemetry) error {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	return t.Shutdown(ctx)
}

func runChecks(ctx context.Context, checks []Check) []string {
	var failed []string
	for _, c := range checks {
		if err := c.Probe(ctx); err != nil {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

type healthBody struct {
	Status  string   `json:"status"`
	Service string   `json:"service"`
	Failed  []string `json:"failed,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, service, state string, failed []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthBody{Status: state, Service: service, Failed: failed})
}
