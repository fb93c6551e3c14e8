package repository

import (
	"context"
	"fmt"

	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/github"
)

// maxPerPage is the GitHub page size ceiling for commit listings.
const maxPerPage = 100

func toCommit(rc *github.RepositoryCommit) types.Commit {
	gc := rc.GetCommit()
	author := gc.GetAuthor()

	name := author.GetName()
	if name == "" {
		name = rc.GetAuthor().GetLogin()
	}
	url := rc.GetHTMLURL()
	if url == "" {
		url = gc.GetURL()
	}

	return types.Commit{
		SHA:     rc.GetSHA(),
		Author:  name,
		Email:   author.GetEmail(),
		Message: gc.GetMessage(),
		Date:    author.GetDate(),
		URL:     url,
		TreeSHA: gc.GetTree().GetSHA(),
	}
}

// ListCommits returns up to limit commits of ref, newest first. An empty ref
// lists the default branch.
func (c *Client) ListCommits(ctx context.Context, id types.RepositoryIdentity, ref string, limit int) ([]types.Commit, error) {
	if limit <= 0 || limit > maxPerPage {
		return nil, &types.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", maxPerPage)}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rcs, _, err := c.gh.Repositories.ListCommits(ctx, id.Owner, id.Name, &github.CommitsListOptions{
		SHA:         ref,
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err := WrapGitHubError("list commits", err); err != nil {
		return nil, err
	}

	commits := make([]types.Commit, 0, len(rcs))
	for _, rc := range rcs {
		if len(commits) == limit {
			break
		}
		commits = append(commits, toCommit(rc))
	}
	return commits, nil
}

// HeadCommit returns the most recent commit of ref.
func (c *Client) HeadCommit(ctx context.Context, id types.RepositoryIdentity, ref string) (*types.Commit, error) {
	commits, err := c.ListCommits(ctx, id, ref, 1)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("repository %s has no commits", id.FullName())
	}
	return &commits[0], nil
}

// Compare compares base against head using the compare endpoint. GitHub caps
// the file list at 300 entries.
func (c *Client) Compare(ctx context.Context, id types.RepositoryIdentity, base, head string) (*types.Comparison, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cmp, _, err := c.gh.Repositories.CompareCommits(ctx, id.Owner, id.Name, base, head)
	if err := WrapGitHubError("compare commits", err); err != nil {
		return nil, err
	}

	out := &types.Comparison{
		Status:       cmp.GetStatus(),
		AheadBy:      cmp.GetAheadBy(),
		BehindBy:     cmp.GetBehindBy(),
		TotalCommits: cmp.GetTotalCommits(),
		HTMLURL:      cmp.GetHTMLURL(),
	}
	for _, f := range cmp.Files {
		out.Files = append(out.Files, types.FileChange{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Changes:   f.GetChanges(),
			Patch:     f.GetPatch(),
		})
	}
	return out, nil
}

// LatestCommit returns the newest commit on the default branch of the
// repository at repoURL, or nil when it cannot be fetched. The reason for an
// absent result is logged.
func (c *Client) LatestCommit(ctx context.Context, repoURL string) *types.Commit {
	commit, err := c.latestCommit(ctx, repoURL)
	if err != nil {
		clog.FromContext(ctx).With("repo_url", repoURL).Warnf("Failed to fetch latest commit: %v", err)
		return nil
	}
	return commit
}

func (c *Client) latestCommit(ctx context.Context, repoURL string) (*types.Commit, error) {
	id, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	return c.HeadCommit(ctx, id, "")
}

// CheckForNewPush fetches the latest commit and compares it with
// lastKnownSHA. A failed fetch never reports a new push.
func (c *Client) CheckForNewPush(ctx context.Context, repoURL, lastKnownSHA string) types.PushCheck {
	latest, err := c.latestCommit(ctx, repoURL)
	if err != nil {
		clog.FromContext(ctx).With("repo_url", repoURL).Warnf("Failed to fetch latest commit: %v", err)
		return types.PushCheck{PreviousSHA: lastKnownSHA, Error: err.Error()}
	}
	return EvaluatePush(latest, lastKnownSHA)
}

// EvaluatePush decides whether latest is a push that has not been seen yet.
func EvaluatePush(latest *types.Commit, lastKnownSHA string) types.PushCheck {
	check := types.PushCheck{Latest: latest, PreviousSHA: lastKnownSHA}
	if latest == nil {
		check.Error = "no commit fetched"
		return check
	}
	check.HasNewPush = lastKnownSHA == "" || latest.SHA != lastKnownSHA
	return check
}
