package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"devflow-autopilot/types"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

var errFileLimit = errors.New("file limit reached")

type SnapshotOptions struct {
	Depth        int
	MaxFiles     int
	MaxFileBytes int64
	// ListOnly is consulted for every path. Matching files are listed with
	// their size but their content is not read.
	ListOnly func(path string) bool
}

// Snapshot is the file tree of a repository at its default branch head.
type Snapshot struct {
	HeadSHA   string
	Files     []types.FileInfo
	Truncated bool
}

// Snapshot clones the repository into memory and reads its files. Nothing
// is written to disk.
func (c *Client) Snapshot(ctx context.Context, id types.RepositoryIdentity, opts SnapshotOptions) (*Snapshot, error) {
	cloneOpts := &git.CloneOptions{
		URL:          fmt.Sprintf("https://github.com/%s/%s.git", id.Owner, id.Name),
		Depth:        opts.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if c.token != "" {
		cloneOpts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: c.token}
	}

	slog.Info("Cloning repository into memory", "repo", id.FullName(), "depth", opts.Depth)

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, cloneOpts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &types.NetworkError{Op: "clone", Timeout: true, Err: err}
		}
		return nil, &types.NetworkError{Op: "clone", Err: err}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree: %w", err)
	}

	return readTree(tree, head.Hash().String(), opts)
}

func readTree(tree *object.Tree, headSHA string, opts SnapshotOptions) (*Snapshot, error) {
	snap := &Snapshot{HeadSHA: headSHA}

	err := tree.Files().ForEach(func(f *object.File) error {
		if opts.MaxFiles > 0 && len(snap.Files) >= opts.MaxFiles {
			snap.Truncated = true
			return errFileLimit
		}

		info := types.FileInfo{
			Path:         f.Name,
			RelativePath: f.Name,
			Size:         f.Size,
		}
		if opts.ListOnly != nil && opts.ListOnly(f.Name) {
			snap.Files = append(snap.Files, info)
			return nil
		}

		binary, err := f.IsBinary()
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", f.Name, err)
		}
		info.Binary = binary

		if !binary && (opts.MaxFileBytes <= 0 || f.Size <= opts.MaxFileBytes) {
			contents, err := f.Contents()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			info.Content = []byte(contents)
		}

		snap.Files = append(snap.Files, info)
		return nil
	})
	if err != nil && !errors.Is(err, errFileLimit) {
		return nil, err
	}

	if snap.Truncated {
		slog.Warn("Repository snapshot truncated", "files", len(snap.Files))
	}
	return snap, nil
}
