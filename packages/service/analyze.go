package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/analyzer"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

type AnalyzeRequest struct {
	GitHubURL           string   `json:"github_url"`
	AnalysisType        string   `json:"analysis_type"`
	IncludeDependencies bool     `json:"include_dependencies"`
	ExcludePatterns     []string `json:"exclude_patterns"`
}

type AnalyzeResponse struct {
	Success  bool                  `json:"success"`
	RepoInfo *types.RepositoryInfo `json:"repo_info,omitempty"`
	HeadSHA  string                `json:"head_sha,omitempty"`
	*analyzer.Report
	Truncated bool   `json:"truncated,omitempty"`
	AIError   string `json:"ai_error,omitempty"`
}

// Analyze clones the repository into memory and reports on its structure.
// With analysis type "ai" the rule based recommendations are extended by the
// model; a failing model only sets AIError.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	kind := strings.ToLower(strings.TrimSpace(req.AnalysisType))
	switch kind {
	case "", "basic", "ai":
	default:
		return nil, &types.ValidationError{Field: "analysis_type", Reason: fmt.Sprintf("unknown analysis type %q", req.AnalysisType)}
	}

	id, err := repository.ResolveRepository(req.GitHubURL)
	if err != nil {
		return nil, err
	}
	log := clog.FromContext(ctx).With("repo", id.FullName())
	log.Infof("Analyzing repository (type %q)", kind)

	var (
		info *types.RepositoryInfo
		snap *repository.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.gh.Repository(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = s.gh.Snapshot(gctx, id, repository.SnapshotOptions{
			Depth:        s.cfg.Analysis.CloneDepth,
			MaxFiles:     s.cfg.Analysis.MaxFiles,
			MaxFileBytes: s.cfg.Analysis.MaxFileBytes,
			ListOnly:     analyzer.ListOnly,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	report := analyzer.Analyze(snap.Files, analyzer.Options{
		ExcludePatterns:     slices.Concat(s.cfg.Analysis.ExcludePatterns, req.ExcludePatterns),
		IncludeDependencies: req.IncludeDependencies,
		LargeFileBytes:      s.cfg.Analysis.LargeFileBytes,
	})
	resp := &AnalyzeResponse{
		Success:   true,
		RepoInfo:  info,
		HeadSHA:   snap.HeadSHA,
		Report:    report,
		Truncated: snap.Truncated,
	}

	if kind == "ai" {
		recs, err := ai.Recommend(ctx, s.llm, recommendInput(info, report))
		if err != nil {
			log.Warnf("Failed to generate AI recommendations: %v", err)
			resp.AIError = err.Error()
		} else {
			report.Recommendations = mergeRecommendations(recs, report.Recommendations)
		}
	}

	log.With("files", report.Metrics.TotalFiles, "analyzed", report.Metrics.AnalyzedFiles).Info("Repository analysis complete")
	return resp, nil
}

func recommendInput(info *types.RepositoryInfo, r *analyzer.Report) ai.RecommendInput {
	m := r.Metrics
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d files (%d analyzed, %d code, %d test), %d lines, max depth %d\n",
		m.TotalFiles, m.AnalyzedFiles, m.CodeFiles, m.TestFiles, m.TotalLines, m.MaxDepth)
	langs := make([]string, 0, len(m.Languages))
	for lang := range m.Languages {
		langs = append(langs, lang)
	}
	slices.SortFunc(langs, func(a, b string) int { return m.Languages[b].Lines - m.Languages[a].Lines })
	for _, lang := range langs {
		fmt.Fprintf(&sb, "%s: %d files, %d lines\n", lang, m.Languages[lang].Files, m.Languages[lang].Lines)
	}

	in := ai.RecommendInput{Repo: *info, Metrics: sb.String()}
	for _, sg := range slices.Concat(r.StructureSuggestions, r.CleanupSuggestions) {
		in.Suggestions = append(in.Suggestions, sg.Message)
	}
	for _, d := range m.KeyDirectories {
		in.KeyDirs = append(in.KeyDirs, d.Name)
	}
	return in
}

// mergeRecommendations puts model recommendations first and drops repeats.
func mergeRecommendations(model, rules []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(model)+len(rules))
	for _, r := range slices.Concat(model, rules) {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
