package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/bluebeam/internal/commands"
)

var version = "dev"

func main() {
	// Ctrl+C cancels in-flight requests and retry waits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args, version); err != nil {
		slog.ErrorContext(ctx, "command failed", "err", err)
		stop()
		os.Exit(1)
	}
}
