// Command devflow-webhook runs devflow as a GitHub App.
package main

import (
	"context"
	"log/slog"
	"os"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/handlers"
	"devflow-autopilot/packages/state"

	"github.com/joho/godotenv"
	"github.com/swinton/go-probot/probot"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx, os.Getenv("DEVFLOW_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug.Enabled {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	loadPrivateKey()
	slog.Info("Starting GitHub App", "appID", os.Getenv("GITHUB_APP_ID"))

	llm, llmErr := ai.New(cfg.AI)
	if llmErr != nil {
		slog.Warn("LLM features disabled", "error", llmErr)
	}

	store, err := state.Open(ctx, cfg.State)
	if err != nil {
		slog.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	h := handlers.New(cfg, store, llm, llmErr)
	probot.HandleEvent("push", h.HandlePush)
	probot.HandleEvent("installation_repositories", h.HandleInstallations)

	probot.Start()
}

// loadPrivateKey copies the key at GITHUB_APP_PRIVATE_KEY_PATH into
// GITHUB_APP_PRIVATE_KEY, which is where probot reads it from.
func loadPrivateKey() {
	keyPath := os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH")
	if keyPath == "" {
		return
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		slog.Error("Failed to read private key", "path", keyPath, "error", err)
		return
	}
	os.Setenv("GITHUB_APP_PRIVATE_KEY", string(keyData))
	slog.Info("Private key loaded", "path", keyPath)
}
