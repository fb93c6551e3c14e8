package service

import (
	"context"

	"devflow-autopilot/packages/repository"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

type PushCheckRequest struct {
	GitHubURL    string `json:"github_url"`
	LastKnownSHA string `json:"last_known_sha"`
	// UseTrackedState takes the previous SHA from the state store when
	// LastKnownSHA is empty.
	UseTrackedState bool `json:"use_tracked_state"`
}

// LatestCommit returns the newest commit on the default branch, or nil.
func (s *Service) LatestCommit(ctx context.Context, repoURL string) *types.Commit {
	return s.gh.LatestCommit(ctx, repoURL)
}

// CheckPush reports whether the repository has a commit newer than
// req.LastKnownSHA. An empty SHA reports any fetched commit as new unless
// UseTrackedState asks for the recorded SHA. New commits are recorded.
func (s *Service) CheckPush(ctx context.Context, req PushCheckRequest) types.PushCheck {
	id, err := repository.ResolveRepository(req.GitHubURL)
	if err != nil {
		return types.PushCheck{PreviousSHA: req.LastKnownSHA, Error: err.Error()}
	}
	log := clog.FromContext(ctx).With("repo", id.FullName())

	last := req.LastKnownSHA
	if last == "" && req.UseTrackedState {
		st, err := s.tracker.State(ctx, id)
		switch {
		case err != nil:
			log.Warnf("Failed to load repository state: %v", err)
		case st != nil:
			last = st.LastCommitSHA
		}
	}

	check := s.gh.CheckForNewPush(ctx, req.GitHubURL, last)
	if check.HasNewPush && check.Latest != nil {
		if _, _, err := s.tracker.Observe(ctx, id, "", *check.Latest); err != nil {
			log.Warnf("Failed to record observed commit: %v", err)
		}
	}
	return check
}
