// Package main is the entrypoint for the verifier service, which runs the
// OTP contact verification flows and the password brute-force guard.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sequentech/message-otp/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:    "verifier",
		Version: version,
		Setup:   setup,
	}, server.Listeners{})
}
