// Command devflow is the devflow command line.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"devflow-autopilot/packages/cli"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/service"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	level := slog.LevelWarn
	if os.Getenv("DEVFLOW_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, openBackend, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func openBackend(ctx context.Context) (cli.Backend, func(), error) {
	cfg, err := config.LoadConfig(ctx, os.Getenv("DEVFLOW_CONFIG"))
	if err != nil {
		return nil, nil, err
	}
	svc, cleanup, err := service.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cleanup, nil
}
