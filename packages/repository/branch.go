package repository

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"devflow-autopilot/types"

	"github.com/google/go-github/github"
)

// BranchHead returns the commit SHA that refs/heads/branch points to.
func (c *Client) BranchHead(ctx context.Context, id types.RepositoryIdentity, branch string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ref, _, err := c.gh.Git.GetRef(ctx, id.Owner, id.Name, "refs/heads/"+branch)
	if err := WrapGitHubError("get ref", err); err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch points a new branch at sha.
func (c *Client) CreateBranch(ctx context.Context, id types.RepositoryIdentity, branch, sha string) error {
	if err := c.RequireAuth(); err != nil {
		return err
	}

	slog.Info("Creating branch on GitHub", "repo", id.FullName(), "branch", branch, "sha", sha)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	newRef := &github.Reference{
		Ref: github.String("refs/heads/" + branch),
		Object: &github.GitObject{
			SHA: github.String(sha),
		},
	}
	_, _, err := c.gh.Git.CreateRef(ctx, id.Owner, id.Name, newRef)
	if err := WrapGitHubError("create ref", err); err != nil {
		slog.Error("Failed to create branch", "branch", branch, "error", err)
		return err
	}

	slog.Info("Branch created on GitHub", "branch", branch)
	return nil
}

// CommitTree creates a commit with the given tree on top of parent and
// returns the new commit SHA.
func (c *Client) CommitTree(ctx context.Context, id types.RepositoryIdentity, treeSHA, parentSHA, message string) (string, error) {
	if err := c.RequireAuth(); err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	commit, _, err := c.gh.Git.CreateCommit(ctx, id.Owner, id.Name, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: github.String(treeSHA)},
		Parents: []github.Commit{{SHA: github.String(parentSHA)}},
	})
	if err := WrapGitHubError("create commit", err); err != nil {
		return "", err
	}
	return commit.GetSHA(), nil
}

// TreeOf returns the tree SHA of a commit.
func (c *Client) TreeOf(ctx context.Context, id types.RepositoryIdentity, sha string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	commit, _, err := c.gh.Git.GetCommit(ctx, id.Owner, id.Name, sha)
	if err := WrapGitHubError("get git commit", err); err != nil {
		return "", err
	}
	return commit.GetTree().GetSHA(), nil
}

var unsafeBranchChars = regexp.MustCompile(`[^a-z0-9._/-]+`)

// SanitizeBranchName lowercases s and replaces characters git refuses in
// branch names. The result is at most maxLen characters.
func SanitizeBranchName(s string, maxLen int) string {
	sanitized := strings.ToLower(strings.TrimSpace(s))
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = unsafeBranchChars.ReplaceAllString(sanitized, "-")
	sanitized = strings.ReplaceAll(sanitized, "..", ".")
	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}
	if maxLen > 0 && len(sanitized) > maxLen {
		sanitized = sanitized[:maxLen]
	}
	return strings.Trim(sanitized, "-./")
}

// ManualPRLink is the compare view a human can use to open the pull request
// that could not be created automatically.
func ManualPRLink(id types.RepositoryIdentity, base, head string) string {
	return fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s?expand=1", id.Owner, id.Name, base, head)
}
