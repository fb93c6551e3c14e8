package handlers

import (
	"context"
	"log/slog"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/github"
	"github.com/swinton/go-probot/probot"
)

// repoSetup is what preparing a newly installed repository needs from GitHub.
type repoSetup interface {
	EnsureLabels(ctx context.Context, id types.RepositoryIdentity, labels []config.LabelConfig) error
	HeadCommit(ctx context.Context, id types.RepositoryIdentity, ref string) (*types.Commit, error)
}

// HandleInstallations prepares repositories added to the installation.
func (h *Handlers) HandleInstallations(ctx *probot.Context) error {
	event := ctx.Payload.(*github.InstallationRepositoriesEvent)
	action := event.GetAction()

	slog.Info("Installation action", "action", action)

	switch action {
	case "added":
		client := repository.FromGitHub(ctx.GitHub, h.cfg.GitHub.RequestTimeout)
		tracker := state.NewTracker(h.store, client)
		for _, repo := range event.RepositoriesAdded {
			fullName := repo.GetFullName()
			if err := h.setupRepository(h.eventContext("installation_repositories", fullName), client, tracker, fullName); err != nil {
				slog.Error("Failed to set up repository", "repo", fullName, "error", err)
			}
		}
	case "removed":
		for _, repo := range event.RepositoriesRemoved {
			// Access is already revoked, labels stay behind.
			slog.Info("Repository removed", "repo", repo.GetFullName())
		}
	}
	return nil
}

func (h *Handlers) setupRepository(ctx context.Context, gh repoSetup, tracker *state.Tracker, fullName string) error {
	id, err := repository.ParseRepoURL("https://github.com/" + fullName)
	if err != nil {
		return err
	}
	log := clog.FromContext(ctx)

	// Step 1: Create the managed labels
	if err := gh.EnsureLabels(ctx, id, h.cfg.Labels); err != nil {
		return err
	}

	// Step 2: Seed the repository state with the current head
	head, err := gh.HeadCommit(ctx, id, "")
	if err != nil {
		return err
	}
	if _, _, err := tracker.Observe(ctx, id, "", *head); err != nil {
		return err
	}
	log.With("sha", head.ShortSHA()).Info("Repository set up")
	return nil
}
