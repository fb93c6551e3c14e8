package repository

import (
	"context"
	"log/slog"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/types"

	"github.com/google/go-github/github"
)

// EnsureLabels creates the managed labels that do not exist yet. Failures
// for individual labels are logged and skipped.
func (c *Client) EnsureLabels(ctx context.Context, id types.RepositoryIdentity, labels []config.LabelConfig) error {
	if err := c.RequireAuth(); err != nil {
		return err
	}

	for _, label := range labels {
		callCtx, cancel := c.withTimeout(ctx)
		_, _, err := c.gh.Issues.GetLabel(callCtx, id.Owner, id.Name, label.Name)
		if err = WrapGitHubError("get label", err); err == nil {
			cancel()
			slog.Info("Label already exists", "label", label.Name, "repo", id.FullName())
			continue
		}
		if !IsNotFound(err) {
			cancel()
			slog.Error("Error checking label", "label", label.Name, "error", err)
			continue
		}

		_, _, err = c.gh.Issues.CreateLabel(callCtx, id.Owner, id.Name, &github.Label{
			Name:        github.String(label.Name),
			Color:       github.String(label.Color),
			Description: github.String(label.Description),
		})
		cancel()
		if err := WrapGitHubError("create label", err); err != nil {
			slog.Error("Failed to create label", "label", label.Name, "error", err)
			continue
		}
		slog.Info("Created label", "label", label.Name, "repo", id.FullName())
	}

	return nil
}

// AddLabels attaches labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, id types.RepositoryIdentity, number int, labels ...string) error {
	if err := c.RequireAuth(); err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, id.Owner, id.Name, number, labels)
	return WrapGitHubError("add labels", err)
}
