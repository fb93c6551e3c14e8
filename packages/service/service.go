// Package service wires the GitHub client, the analyzers, the LLM generators
// and the repository state into the operations exposed by the HTTP API, the
// CLI and the webhook app.
package service

import (
	"context"
	"time"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"
)

// GitHub is the part of the GitHub client the services use.
type GitHub interface {
	rollback.GitHub
	Repository(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryInfo, error)
	Readme(ctx context.Context, id types.RepositoryIdentity) (string, error)
	ListDirectory(ctx context.Context, id types.RepositoryIdentity, path, ref string) ([]string, error)
	FileContent(ctx context.Context, id types.RepositoryIdentity, path, ref string) (string, string, error)
	PutFile(ctx context.Context, id types.RepositoryIdentity, branch, path, message string, content []byte, sha string) (string, error)
	Snapshot(ctx context.Context, id types.RepositoryIdentity, opts repository.SnapshotOptions) (*repository.Snapshot, error)
	HeadCommit(ctx context.Context, id types.RepositoryIdentity, ref string) (*types.Commit, error)
	LatestCommit(ctx context.Context, repoURL string) *types.Commit
	CheckForNewPush(ctx context.Context, repoURL, lastKnownSHA string) types.PushCheck
}

type Deps struct {
	Config *config.Config
	GitHub GitHub
	// LLM is nil when no provider is configured. LLMErr then says why.
	LLM    ai.Generator
	LLMErr error
	Store  state.Store
	Now    func() time.Time
}

type Service struct {
	cfg       *config.Config
	gh        GitHub
	llm       ai.Generator
	llmErr    error
	tracker   *state.Tracker
	rollback  *rollback.Workflow
	seo       *ai.SEOGenerator
	rootCause *ai.RootCauseAnalyzer
	now       func() time.Time
}

func New(d Deps) *Service {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	store := d.Store
	if store == nil {
		store = state.NewMemoryStore()
	}

	return &Service{
		cfg:     cfg,
		gh:      d.GitHub,
		llm:     d.LLM,
		llmErr:  d.LLMErr,
		tracker: state.NewTracker(store, d.GitHub),
		rollback: rollback.New(d.GitHub, rollback.Options{
			Config:         cfg.Rollback,
			DefaultBranch:  cfg.GitHub.DefaultBranch,
			ExecuteTimeout: cfg.GitHub.ExecuteTimeout,
			Now:            now,
		}),
		seo:       ai.NewSEOGenerator(d.LLM, cfg.SEO.ReadmeLimit),
		rootCause: ai.NewRootCauseAnalyzer(d.LLM),
		now:       now,
	}
}

// Tracker exposes the push tracker to the webhook handlers.
func (s *Service) Tracker() *state.Tracker { return s.tracker }

// LLMAvailable reports whether a provider is configured, and why not.
func (s *Service) LLMAvailable() (bool, error) {
	return s.llm != nil, s.llmErr
}

func (s *Service) Candidates(ctx context.Context, req rollback.CandidatesRequest) ([]types.RollbackCandidate, error) {
	return s.rollback.Candidates(ctx, req)
}

func (s *Service) SafetyCheck(ctx context.Context, req rollback.SafetyRequest) (types.SafetyAssessment, error) {
	return s.rollback.SafetyCheck(ctx, req)
}

func (s *Service) ExecuteRollback(ctx context.Context, req rollback.ExecuteRequest) types.RollbackResult {
	return s.rollback.Execute(ctx, req)
}

// PostDeployAnalysis diagnoses a failed deployment from its diff and logs.
func (s *Service) PostDeployAnalysis(ctx context.Context, f ai.DeployFailure) (*ai.RootCauseReport, error) {
	return s.rootCause.Analyze(ctx, f)
}
