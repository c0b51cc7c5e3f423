// ltmc-server is the long-term memory MCP server. It speaks JSON-RPC
// over stdio by default; stdout carries only protocol frames, so
// logging is redirected before any store is opened.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ltmc/internal/config"
	"ltmc/internal/httpapi"
	"ltmc/internal/logging"
	"ltmc/internal/mcp"
	"ltmc/internal/services"
)

func main() {
	mode := flag.String("mode", "stdio", "Server mode: stdio or http")
	flag.Parse()

	if err := run(*mode); err != nil {
		fmt.Fprintf(os.Stderr, "ltmc-server: %v\n", err)
		os.Exit(1)
	}
}

func run(mode string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Stdout belongs to the protocol from here on.
	level := logging.ParseLogLevel(cfg.Logging.Level)
	if err := logging.Configure(level, cfg.Logging.File); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := services.NewContainer(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logging.Warn("shutdown left errors behind", "error", err.Error())
		}
	}()

	container.StartupSweep(ctx)

	server := mcp.NewServer(container, logging.Default())

	switch mode {
	case "stdio":
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case "http":
		bridge := httpapi.NewHandler(container, server, logging.Default())
		if err := bridge.Serve(ctx, cfg.Server); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	default:
		return fmt.Errorf("invalid mode %q, use stdio or http", mode)
	}

	logging.Info("server stopped")
	return nil
}
