package service

import (
	"context"
	"errors"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

// Open builds a Service from cfg with a token-authenticated GitHub client.
// A missing LLM provider is not an error: the service starts and the
// operations that need a model report it as unavailable. The returned func
// closes the state store.
func Open(ctx context.Context, cfg *config.Config) (*Service, func(), error) {
	gh, err := repository.NewClient(cfg.GitHub)
	if err != nil {
		return nil, nil, err
	}
	if !gh.Authenticated() {
		clog.FromContext(ctx).Warn("GITHUB_TOKEN is not set, only public repositories can be read")
	}

	llm, llmErr := ai.New(cfg.AI)
	if llmErr != nil {
		var unavailable *types.ServiceUnavailableError
		if !errors.As(llmErr, &unavailable) {
			return nil, nil, llmErr
		}
		clog.FromContext(ctx).Warnf("LLM features disabled: %v", llmErr)
	} else {
		clog.FromContext(ctx).With("provider", llm.Name()).Info("LLM provider configured")
	}

	store, err := state.Open(ctx, cfg.State)
	if err != nil {
		return nil, nil, err
	}

	svc := New(Deps{
		Config: cfg,
		GitHub: gh,
		LLM:    llm,
		LLMErr: llmErr,
		Store:  store,
	})
	cleanup := func() {
		if err := store.Close(); err != nil {
			clog.FromContext(ctx).Warnf("Failed to close state store: %v", err)
		}
	}
	return svc, cleanup, nil
}
