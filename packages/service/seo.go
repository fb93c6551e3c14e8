package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"
)

type SEORequest struct {
	GitHubURL string `json:"github_url"`
	Apply     bool   `json:"apply"`
}

type SEOResult struct {
	Success      bool                  `json:"success"`
	Repository   string                `json:"repository"`
	Metadata     *ai.SEOMetadata       `json:"metadata,omitempty"`
	HeadSHA      string                `json:"head_sha,omitempty"`
	PullRequest  *types.PullRequestRef `json:"pull_request,omitempty"`
	ManualPRLink string                `json:"manual_pr_link,omitempty"`
	Message      string                `json:"message,omitempty"`
}

// SEO generates metadata for the repository and, when req.Apply is set,
// commits it on a new branch and opens a pull request.
func (s *Service) SEO(ctx context.Context, req SEORequest) (*SEOResult, error) {
	id, err := repository.ResolveRepository(req.GitHubURL)
	if err != nil {
		return nil, err
	}
	if req.Apply {
		if err := s.gh.RequireAuth(); err != nil {
			return nil, err
		}
	}

	info, meta, err := s.generateSEO(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &SEOResult{Success: true, Repository: id.FullName(), Metadata: meta}
	if !req.Apply {
		return result, nil
	}
	if err := s.applySEO(ctx, id, info, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) generateSEO(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryInfo, *ai.SEOMetadata, error) {
	log := clog.FromContext(ctx).With("repo", id.FullName())

	var (
		info   *types.RepositoryInfo
		readme string
		paths  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.gh.Repository(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		readme, err = s.gh.Readme(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		if paths, err = s.gh.ListDirectory(gctx, id, "", ""); err != nil {
			log.Warnf("Failed to list repository root, continuing without it: %v", err)
			paths = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	meta, err := s.seo.Generate(ctx, ai.SEOInput{Repo: *info, Readme: readme, Paths: paths})
	if err != nil {
		return nil, nil, err
	}
	log.With("topics", len(meta.Topics)).Info("Generated SEO metadata")
	return info, meta, nil
}

func (s *Service) applySEO(ctx context.Context, id types.RepositoryIdentity, info *types.RepositoryInfo, result *SEOResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GitHub.ExecuteTimeout)
	defer cancel()
	log := clog.FromContext(ctx).With("repo", id.FullName())
	path := s.cfg.SEO.MetadataPath

	base := info.DefaultBranch
	if base == "" {
		base = s.cfg.GitHub.DefaultBranch
	}

	// Step 1: Resolve the branch head and the current metadata file
	head, err := s.gh.BranchHead(ctx, id, base)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", base, err)
	}
	result.HeadSHA = head
	current, blobSHA, err := s.gh.FileContent(ctx, id, path, base)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	content, err := json.MarshalIndent(result.Metadata, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')
	if current == string(content) {
		result.Message = "SEO metadata is already up to date"
		s.markSEO(ctx, id, head)
		return nil
	}

	// Step 2: Commit the metadata on a fresh branch
	branch := repository.SanitizeBranchName(fmt.Sprintf("%s%d", s.cfg.SEO.BranchPrefix, s.now().Unix()), 100)
	if err := s.gh.CreateBranch(ctx, id, branch, head); err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}
	if _, err := s.gh.PutFile(ctx, id, branch, path, s.cfg.SEO.CommitMessage, content, blobSHA); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	log.With("branch", branch).Info("Committed SEO metadata")

	// Step 3: Open the pull request
	pr, err := s.gh.OpenPullRequest(ctx, id, repository.NewPullRequest{
		Title: "Update repository SEO metadata",
		Head:  branch,
		Base:  base,
		Body:  seoPullRequestBody(result.Metadata, path, current, string(content)),
	})
	if err != nil {
		log.Warnf("Failed to open SEO pull request: %v", err)
		result.ManualPRLink = repository.ManualPRLink(id, base, branch)
		result.Message = "Branch pushed but the pull request could not be opened. Open it manually: " + result.ManualPRLink
		s.markSEO(ctx, id, head)
		return nil
	}
	result.PullRequest = pr
	if label := s.cfg.SEO.Label; label != "" {
		if err := s.gh.AddLabels(ctx, id, pr.Number, label); err != nil {
			log.Warnf("Failed to label pull request #%d: %v", pr.Number, err)
		}
	}
	result.Message = "Opened pull request " + pr.URL

	// Step 4: Remember that this commit has been handled
	s.markSEO(ctx, id, head)
	return nil
}

func (s *Service) markSEO(ctx context.Context, id types.RepositoryIdentity, sha string) {
	if _, err := s.tracker.MarkProcessed(ctx, id, types.FlagSEOOptimized, sha); err != nil {
		clog.FromContext(ctx).With("repo", id.FullName()).Warnf("Failed to record SEO state: %v", err)
	}
}

func seoPullRequestBody(meta *ai.SEOMetadata, path, before, after string) string {
	var sb strings.Builder
	sb.WriteString("## SEO metadata\n\n")
	fmt.Fprintf(&sb, "**Title:** %s\n\n**Description:** %s\n\n", meta.Title, meta.Description)
	if len(meta.Topics) > 0 {
		fmt.Fprintf(&sb, "**Suggested topics:** %s\n\n", strings.Join(meta.Topics, ", "))
	}
	if meta.Summary != "" {
		fmt.Fprintf(&sb, "%s\n\n", meta.Summary)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err == nil && diff != "" {
		fmt.Fprintf(&sb, "<details><summary>Changes to %s</summary>\n\n```diff\n%s```\n\n</details>\n", path, diff)
	}
	sb.WriteString("\nGenerated by devflow.\n")
	return sb.String()
}
