package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"evcal/internal/cli"
	appLog "evcal/internal/log"
)

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appLog.Info("evcal starting", "version", "0.1.0")
	cli.Main(ctx)
}
