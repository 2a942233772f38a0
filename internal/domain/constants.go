package domain

import "time"

// Compiled defaults that configuration may override.
const (
	// Timeout contracts for outbound calls.
	RedisTimeout    = 2 * time.Second
	DynamoDBTimeout = 5 * time.Second
	PostgresTimeout = 5 * time.Second
	CourierTimeout  = 10 * time.Second // per-send budget for SMS and email delivery

	// Flow tickets bind an HTTP caller to an account and session.
	FlowTicketLifetime = 15 * time.Minute

	// Verification notes outlive the code so an expired code can still be
	// reported as expired rather than missing.
	NotesTTL = 24 * time.Hour

	// Graceful shutdown phases.
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 2 * time.Second // healthz reports 503 before listeners close
	ShutdownHTTPTimeout     = 10 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second

	// Request limits
	MaxRequestBodyBytes = 16 * 1024
	MaxContactLength    = 320 // RFC 5321 path limit; also bounds phone input
)
