// Command devflow-autopilot serves the devflow HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/server"
	"devflow-autopilot/packages/service"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx, os.Getenv("DEVFLOW_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Debug.Enabled)
	log := clog.FromContext(ctx)

	svc, cleanup, err := service.Open(ctx, cfg)
	if err != nil {
		log.Errorf("Failed to start: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := server.New(svc, cfg.Server).Run(ctx); err != nil {
		log.Errorf("Server stopped: %v", err)
		cleanup()
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("DEVFLOW_LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
