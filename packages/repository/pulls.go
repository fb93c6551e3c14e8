package repository

import (
	"context"
	"log/slog"

	"devflow-autopilot/types"

	"github.com/google/go-github/github"
)

type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// OpenPullRequest opens a pull request from Head into Base.
func (c *Client) OpenPullRequest(ctx context.Context, id types.RepositoryIdentity, pr NewPullRequest) (*types.PullRequestRef, error) {
	if err := c.RequireAuth(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	created, _, err := c.gh.PullRequests.Create(ctx, id.Owner, id.Name, &github.NewPullRequest{
		Title:               github.String(pr.Title),
		Head:                github.String(pr.Head),
		Base:                github.String(pr.Base),
		Body:                github.String(pr.Body),
		MaintainerCanModify: github.Bool(true),
	})
	if err := WrapGitHubError("create pull request", err); err != nil {
		slog.Error("Failed to create pull request", "repo", id.FullName(), "head", pr.Head, "error", err)
		return nil, err
	}

	slog.Info("Pull request created", "repo", id.FullName(), "number", created.GetNumber(), "url", created.GetHTMLURL())
	return &types.PullRequestRef{
		URL:    created.GetHTMLURL(),
		Number: created.GetNumber(),
		Branch: pr.Head,
	}, nil
}
