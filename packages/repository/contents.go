package repository

import (
	"context"
	"fmt"

	"devflow-autopilot/types"

	"github.com/google/go-github/github"
	"golang.org/x/sync/errgroup"
)

// Repository returns repository metadata together with its language breakdown.
func (c *Client) Repository(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		repo      *github.Repository
		languages map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		repo, _, err = c.gh.Repositories.Get(gctx, id.Owner, id.Name)
		return WrapGitHubError("get repository", err)
	})
	g.Go(func() error {
		var err error
		languages, _, err = c.gh.Repositories.ListLanguages(gctx, id.Owner, id.Name)
		return WrapGitHubError("list languages", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.RepositoryInfo{
		Owner:         id.Owner,
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		Homepage:      repo.GetHomepage(),
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
		Languages:     languages,
		Topics:        repo.Topics,
		License:       repo.GetLicense().GetName(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		SizeKB:        repo.GetSize(),
		Private:       repo.GetPrivate(),
		Archived:      repo.GetArchived(),
		HTMLURL:       repo.GetHTMLURL(),
		CreatedAt:     repo.GetCreatedAt().Time,
		PushedAt:      repo.GetPushedAt().Time,
	}, nil
}

// Readme returns the decoded README of the default branch, or "" when the
// repository has none.
func (c *Client) Readme(ctx context.Context, id types.RepositoryIdentity) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	readme, _, err := c.gh.Repositories.GetReadme(ctx, id.Owner, id.Name, nil)
	if err := WrapGitHubError("get readme", err); err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	content, err := readme.GetContent()
	if err != nil {
		return "", &types.ParseError{What: "README content", Err: err}
	}
	return content, nil
}

// FileContent returns the content and blob SHA of path on ref. A missing file
// yields empty strings and no error.
func (c *Client) FileContent(ctx context.Context, id types.RepositoryIdentity, path, ref string) (content, sha string, err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, id.Owner, id.Name, path, opts)
	if err := WrapGitHubError("get contents", err); err != nil {
		if IsNotFound(err) {
			return "", "", nil
		}
		return "", "", err
	}
	if file == nil {
		return "", "", fmt.Errorf("%s is a directory", path)
	}
	content, err = file.GetContent()
	if err != nil {
		return "", "", &types.ParseError{What: path, Err: err}
	}
	return content, file.GetSHA(), nil
}

// PutFile creates or updates path on branch. sha is the current blob SHA
// when the file already exists.
func (c *Client) PutFile(ctx context.Context, id types.RepositoryIdentity, branch, path, message string, content []byte, sha string) (string, error) {
	if err := c.RequireAuth(); err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}

	var (
		resp *github.RepositoryContentResponse
		err  error
	)
	if sha == "" {
		resp, _, err = c.gh.Repositories.CreateFile(ctx, id.Owner, id.Name, path, opts)
	} else {
		opts.SHA = github.String(sha)
		resp, _, err = c.gh.Repositories.UpdateFile(ctx, id.Owner, id.Name, path, opts)
	}
	if err := WrapGitHubError("put file", err); err != nil {
		return "", err
	}
	return resp.Commit.GetSHA(), nil
}

// ListDirectory returns the entry names of the directory at path on ref.
// Directories carry a trailing slash.
func (c *Client) ListDirectory(ctx context.Context, id types.RepositoryIdentity, path, ref string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	_, entries, _, err := c.gh.Repositories.GetContents(ctx, id.Owner, id.Name, path, opts)
	if err := WrapGitHubError("list directory", err); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.GetName()
		if e.GetType() == "dir" {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}
