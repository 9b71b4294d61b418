package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labdock/pkg/cli"
	"labdock/pkg/logger"
)

func main() {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
		// Allow some time for cleanup before forcing exit
		time.Sleep(5 * time.Second)
		os.Exit(1)
	}()

	root := cli.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr cli.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
