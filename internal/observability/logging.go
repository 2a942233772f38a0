package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level       string // "debug", "info", "warn", "error"
	Format      string // "json" or "text"
	ServiceName string
	Environment string

	// Output defaults to stdout.
	Output io.Writer
}

const redacted = "[REDACTED]"

// sensitivePatterns are matched case-insensitively as substrings of
// attribute keys.
var sensitivePatterns = []string{
	"_key",
	"_secret",
	"_token",
	"_password",
	"_credential",
	"authorization",
	"bearer",
	"apikey",
	"secret",
	"password",
	"private",
}

// sensitiveKeys are redacted only on an exact (case-insensitive) match, so
// that keys like "status_code" survive.
var sensitiveKeys = map[string]struct{}{
	"code":   {},
	"otp":    {},
	"ticket": {},
}

// safeKeys are never redacted even when a pattern matches.
var safeKeys = map[string]struct{}{
	"message_key": {},
	"contact_key": {},
}

// InitLogger creates a redacting structured logger and installs it as the
// slog default.
func InitLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		opts.ReplaceAttr = redactSecrets
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = NewRedactingHandler(w, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)

	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewRedactingHandler creates a JSON handler that redacts sensitive fields
// after any ReplaceAttr already set in opts.
func NewRedactingHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	originalReplace := opts.ReplaceAttr
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if originalReplace != nil {
			a = originalReplace(groups, a)
		}
		return redactSecrets(groups, a)
	}

	return slog.NewJSONHandler(w, opts)
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if _, ok := safeKeys[key]; ok {
		return a
	}
	if _, ok := sensitiveKeys[key]; ok {
		return slog.String(a.Key, redacted)
	}
	for _, pattern := range sensitivePatterns {
		if strings.Contains(key, pattern) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// WithTraceID returns logger annotated with the trace ID from ctx, if any.
func WithTraceID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
