// Command server runs the prompt-agent HTTP, WebSocket and gRPC health server.
//
// Configuration is read from the YAML file named by PROMPTAGENT_CONFIG
// (default /etc/prompt-agent/config.yaml), PROMPTAGENT_* environment
// overrides and the usual provider key variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/longmans/prompt-agent/internal/app"
	"github.com/longmans/prompt-agent/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{ConfigPath: os.Getenv("PROMPTAGENT_CONFIG")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	err = server.Run(ctx, server.Deps{
		Config:   a.Config,
		Service:  a.Service,
		Registry: a.Registry,
		Store:    a.Store,
		Budget:   a.Budget,
		Logger:   a.Logger,
		Audit:    a.Audit,
	})
	_ = a.Close(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
