// Package handlers reacts to GitHub App webhook events.
package handlers

import (
	"context"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/packages/state"

	"github.com/chainguard-dev/clog"
	"github.com/swinton/go-probot/probot"
)

// Handlers holds what every event handler shares. Each event gets its own
// service bound to the installation client probot hands in.
type Handlers struct {
	cfg    *config.Config
	store  state.Store
	llm    ai.Generator
	llmErr error
}

func New(cfg *config.Config, store state.Store, llm ai.Generator, llmErr error) *Handlers {
	return &Handlers{cfg: cfg, store: store, llm: llm, llmErr: llmErr}
}

func (h *Handlers) serviceFor(ctx *probot.Context) *service.Service {
	return service.New(service.Deps{
		Config: h.cfg,
		GitHub: repository.FromGitHub(ctx.GitHub, h.cfg.GitHub.RequestTimeout),
		LLM:    h.llm,
		LLMErr: h.llmErr,
		Store:  h.store,
	})
}

func (h *Handlers) eventContext(event, repo string) context.Context {
	ctx := context.Background()
	return clog.WithLogger(ctx, clog.FromContext(ctx).With("event", event, "repo", repo))
}
