// Package main is the entry point for the ucp command-line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ucp-project/ucp/cmd/ucp/app"
	"github.com/ucp-project/ucp/internal/logging"
)

func main() {
	logging.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logging.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
