// Package rollback lists rollback candidates for a branch, assesses the risk
// of rolling back to one of them and opens the rollback pull request.
package rollback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/metrics"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

// GitHub is the part of the GitHub client the workflow uses.
type GitHub interface {
	RequireAuth() error
	ListCommits(ctx context.Context, id types.RepositoryIdentity, ref string, limit int) ([]types.Commit, error)
	Compare(ctx context.Context, id types.RepositoryIdentity, base, head string) (*types.Comparison, error)
	BranchHead(ctx context.Context, id types.RepositoryIdentity, branch string) (string, error)
	TreeOf(ctx context.Context, id types.RepositoryIdentity, sha string) (string, error)
	CommitTree(ctx context.Context, id types.RepositoryIdentity, treeSHA, parentSHA, message string) (string, error)
	CreateBranch(ctx context.Context, id types.RepositoryIdentity, branch, sha string) error
	OpenPullRequest(ctx context.Context, id types.RepositoryIdentity, pr repository.NewPullRequest) (*types.PullRequestRef, error)
	AddLabels(ctx context.Context, id types.RepositoryIdentity, number int, labels ...string) error
}

type CandidatesRequest struct {
	Owner  string `json:"repo_owner"`
	Name   string `json:"repo_name"`
	Branch string `json:"branch"`
	Limit  int    `json:"limit"`
}

type SafetyRequest struct {
	Owner          string `json:"repo_owner"`
	Name           string `json:"repo_name"`
	RollbackNumber int    `json:"rollback_number"`
	Branch         string `json:"branch"`
}

type ExecuteRequest struct {
	Owner          string `json:"repo_owner"`
	Name           string `json:"repo_name"`
	RollbackNumber int    `json:"rollback_number"`
	Branch         string `json:"branch"`
	Force          bool   `json:"force"`
}

type Options struct {
	Config         config.RollbackConfig
	DefaultBranch  string
	ExecuteTimeout time.Duration
	// Scorer defaults to a RuleScorer built from Config.Scoring.
	Scorer Scorer
	// Ledger defaults to a new ledger with Config.AssessmentTTL.
	Ledger *Ledger
	Now    func() time.Time
}

type Workflow struct {
	gh             GitHub
	cfg            config.RollbackConfig
	defaultBranch  string
	executeTimeout time.Duration
	scorer         Scorer
	ledger         *Ledger
	now            func() time.Time
}

func New(gh GitHub, opts Options) *Workflow {
	w := &Workflow{
		gh:             gh,
		cfg:            opts.Config,
		defaultBranch:  opts.DefaultBranch,
		executeTimeout: opts.ExecuteTimeout,
		scorer:         opts.Scorer,
		ledger:         opts.Ledger,
		now:            opts.Now,
	}
	if w.defaultBranch == "" {
		w.defaultBranch = "main"
	}
	if w.scorer == nil {
		w.scorer = NewRuleScorer(opts.Config.Scoring)
	}
	if w.ledger == nil {
		w.ledger = NewLedger(opts.Config.AssessmentTTL)
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Workflow) target(owner, name, branch string) (types.RepositoryIdentity, string, error) {
	id, err := repository.Identity(owner, name)
	if err != nil {
		return id, "", err
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = w.defaultBranch
	}
	return id, branch, nil
}

func ledgerKey(id types.RepositoryIdentity, branch string) string {
	return id.Key() + "@" + branch
}

// Candidates lists the most recent commits of the branch, newest first,
// numbered from 1.
func (w *Workflow) Candidates(ctx context.Context, req CandidatesRequest) ([]types.RollbackCandidate, error) {
	id, branch, err := w.target(req.Owner, req.Name, req.Branch)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	switch {
	case limit < 0:
		return nil, &types.ValidationError{Field: "limit", Reason: "must not be negative"}
	case limit == 0:
		limit = w.cfg.DefaultLimit
	case limit > w.cfg.MaxLimit:
		limit = w.cfg.MaxLimit
	}
	return w.list(ctx, id, branch, limit)
}

func (w *Workflow) list(ctx context.Context, id types.RepositoryIdentity, branch string, limit int) ([]types.RollbackCandidate, error) {
	commits, err := w.gh.ListCommits(ctx, id, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s@%s: %w", id.FullName(), branch, err)
	}

	candidates := make([]types.RollbackCandidate, 0, len(commits))
	for i, c := range commits {
		candidates = append(candidates, types.RollbackCandidate{Commit: c, RollbackNumber: i + 1})
	}
	w.ledger.RememberListing(ledgerKey(id, branch), candidates, w.now())

	clog.FromContext(ctx).With("repo", id.FullName(), "branch", branch).Infof("Listed %d rollback candidates", len(candidates))
	return candidates, nil
}

// resolve maps a rollback number onto the last listing. A listing is fetched
// first only when candidates were never listed for the branch; an expired
// listing has to be refreshed by the caller so ordinals never silently move.
func (w *Workflow) resolve(ctx context.Context, id types.RepositoryIdentity, branch string, n int) (types.RollbackCandidate, error) {
	if n < 1 {
		return types.RollbackCandidate{}, &types.ValidationError{Field: "rollback_number", Reason: "must be at least 1"}
	}

	key := ledgerKey(id, branch)
	candidates, ok := w.ledger.Listing(key, w.now())
	if !ok && w.ledger.Expired(key, w.now()) {
		return types.RollbackCandidate{}, &types.ValidationError{
			Field:  "rollback_number",
			Reason: "the candidate listing expired, list candidates again",
		}
	}
	if !ok {
		var err error
		candidates, err = w.list(ctx, id, branch, min(max(n, w.cfg.DefaultLimit), w.cfg.MaxLimit))
		if err != nil {
			return types.RollbackCandidate{}, err
		}
	}
	if n > len(candidates) {
		return types.RollbackCandidate{}, &types.ValidationError{
			Field:  "rollback_number",
			Reason: fmt.Sprintf("must be between 1 and %d", len(candidates)),
		}
	}
	return candidates[n-1], nil
}

// SafetyCheck assesses rolling the branch back to the numbered candidate. On
// failure the returned assessment is UNKNOWN and carries the reason.
func (w *Workflow) SafetyCheck(ctx context.Context, req SafetyRequest) (types.SafetyAssessment, error) {
	a := types.SafetyAssessment{
		RiskLevel:      types.RiskUnknown,
		RollbackNumber: req.RollbackNumber,
		AssessedAt:     w.now().UTC(),
	}
	fail := func(err error) (types.SafetyAssessment, error) {
		a.Warnings = append(a.Warnings, "Safety check failed: "+err.Error())
		a.Recommendation = Recommend(types.RiskUnknown)
		metrics.ObserveRisk(string(types.RiskUnknown))
		return a, err
	}

	id, branch, err := w.target(req.Owner, req.Name, req.Branch)
	if err != nil {
		return fail(err)
	}
	log := clog.FromContext(ctx).With("repo", id.FullName(), "branch", branch, "rollback_number", req.RollbackNumber)

	candidate, err := w.resolve(ctx, id, branch, req.RollbackNumber)
	if err != nil {
		return fail(err)
	}
	a.TargetSHA = candidate.SHA

	head, err := w.gh.BranchHead(ctx, id, branch)
	if err != nil {
		return fail(fmt.Errorf("failed to read head of %s: %w", branch, err))
	}
	a.HeadSHA = head

	cmp, err := w.gh.Compare(ctx, id, candidate.SHA, head)
	if err != nil {
		return fail(fmt.Errorf("failed to compare %s with %s: %w", candidate.ShortSHA(), branch, err))
	}

	shape := ShapeOf(cmp, w.cfg.Scoring)
	risk, warnings := w.scorer.Score(shape)
	a.RiskLevel = risk
	a.Warnings = warnings
	a.Recommendation = Recommend(risk)
	a.FilesChanged = shape.FilesChanged
	a.Additions = shape.Additions
	a.Deletions = shape.Deletions
	a.CommitsReverted = shape.CommitsReverted

	w.ledger.RecordAssessment(ledgerKey(id, branch), a)
	metrics.ObserveRisk(string(risk))
	log.With("risk", risk, "files", shape.FilesChanged).Info("Rollback safety check completed")
	return a, nil
}

// Execute opens a pull request that restores the branch to the numbered
// candidate. Without Force a fresh safety check of that candidate against the
// current head is required. When the pull request cannot be opened the result
// is still successful and carries a manual compare link for the pushed branch.
func (w *Workflow) Execute(ctx context.Context, req ExecuteRequest) types.RollbackResult {
	if w.executeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.executeTimeout)
		defer cancel()
	}
	log := clog.FromContext(ctx).With("repo_owner", req.Owner, "repo_name", req.Name, "rollback_number", req.RollbackNumber)

	fail := func(step string, err error) types.RollbackResult {
		metrics.ObserveRollback("failed")
		log.Warnf("Rollback failed: %s: %v", step, err)
		return types.RollbackResult{
			Success:   false,
			Message:   fmt.Sprintf("%s: %v", step, err),
			ErrorKind: types.ErrorKind(err),
		}
	}

	id, branch, err := w.target(req.Owner, req.Name, req.Branch)
	if err != nil {
		return fail("Invalid repository", err)
	}
	if err := w.gh.RequireAuth(); err != nil {
		return fail("GitHub token required", err)
	}

	candidate, err := w.resolve(ctx, id, branch, req.RollbackNumber)
	if err != nil {
		return fail("Could not resolve rollback candidate", err)
	}

	// Step 1: pin the current head
	head, err := w.gh.BranchHead(ctx, id, branch)
	if err != nil {
		return fail("Failed to read branch head", err)
	}
	if candidate.SHA == head {
		return fail("Nothing to roll back", &types.ValidationError{Field: "rollback_number", Reason: "candidate is already the head of " + branch})
	}

	// Step 2: check the safety gate
	assessment, assessed := w.ledger.Assessment(ledgerKey(id, branch), candidate.SHA, w.now())
	if !req.Force {
		switch {
		case !assessed:
			return fail("Safety check required", &types.ValidationError{Field: "force", Reason: "run a safety check for this candidate first or set force"})
		case assessment.HeadSHA != head:
			return fail("Safety check is stale", &types.ValidationError{Field: "force", Reason: branch + " moved since the safety check, run it again"})
		case w.cfg.BlockHighRisk && assessment.RiskLevel.AtLeast(types.RiskHigh):
			return fail("Rollback blocked", &types.ValidationError{Field: "force", Reason: fmt.Sprintf("risk level is %s, set force to proceed", assessment.RiskLevel)})
		}
	}

	// Step 3: commit the candidate tree on top of head
	tree := candidate.TreeSHA
	if tree == "" {
		if tree, err = w.gh.TreeOf(ctx, id, candidate.SHA); err != nil {
			return fail("Failed to read candidate tree", err)
		}
	}
	commitSHA, err := w.gh.CommitTree(ctx, id, tree, head, commitMessage(candidate, branch, head))
	if err != nil {
		return fail("Failed to create rollback commit", err)
	}

	// Step 4: push the rollback branch
	rollbackBranch := w.branchName(branch, candidate)
	if err := w.gh.CreateBranch(ctx, id, rollbackBranch, commitSHA); err != nil {
		return fail("Failed to create rollback branch", err)
	}

	// Step 5: open the pull request, falling back to a manual link
	pr, err := w.gh.OpenPullRequest(ctx, id, repository.NewPullRequest{
		Title: fmt.Sprintf("Rollback %s to %s", branch, candidate.ShortSHA()),
		Head:  rollbackBranch,
		Base:  branch,
		Body:  pullRequestBody(candidate, branch, head, assessment, assessed, req.Force),
	})
	if err != nil {
		link := repository.ManualPRLink(id, branch, rollbackBranch)
		metrics.ObserveRollback("manual")
		log.Warnf("Pull request could not be opened, returning manual link: %v", err)
		return types.RollbackResult{
			Success:      true,
			ManualPRLink: link,
			Message:      fmt.Sprintf("Branch %s was created but the pull request could not be opened (%v). Open it manually: %s", rollbackBranch, err, link),
		}
	}

	if w.cfg.Label != "" {
		if err := w.gh.AddLabels(ctx, id, pr.Number, w.cfg.Label); err != nil {
			log.Warnf("Failed to label rollback pull request: %v", err)
		}
	}

	metrics.ObserveRollback("pr")
	log.With("pr", pr.Number, "branch", rollbackBranch).Info("Rollback pull request opened")
	return types.RollbackResult{
		Success:     true,
		PullRequest: pr,
		Message:     fmt.Sprintf("Opened pull request #%d rolling %s back to %s", pr.Number, branch, candidate.ShortSHA()),
	}
}

func (w *Workflow) branchName(branch string, c types.RollbackCandidate) string {
	name := fmt.Sprintf("%s%s-%s-%d", w.cfg.BranchPrefix, branch, c.ShortSHA(), w.now().Unix())
	return repository.SanitizeBranchName(name, 100)
}

func commitMessage(c types.RollbackCandidate, branch, head string) string {
	return fmt.Sprintf("Rollback %s to %s\n\nRestores the tree of %s (%s).\nPrevious head: %s",
		branch, c.ShortSHA(), c.SHA, c.Subject(), head)
}

func pullRequestBody(c types.RollbackCandidate, branch, head string, a types.SafetyAssessment, assessed, forced bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Rollback of `%s`\n\n", branch)
	fmt.Fprintf(&sb, "This pull request restores `%s` to commit %s.\n\n", branch, c.SHA)
	fmt.Fprintf(&sb, "- **Target:** `%s` %s\n", c.ShortSHA(), c.Subject())
	fmt.Fprintf(&sb, "- **Author:** %s\n", c.Author)
	if !c.Date.IsZero() {
		fmt.Fprintf(&sb, "- **Committed:** %s\n", c.Date.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "- **Current head:** `%s`\n", head)

	if assessed {
		fmt.Fprintf(&sb, "\n### Safety check: %s\n\n", a.RiskLevel)
		fmt.Fprintf(&sb, "%d files, +%d/-%d lines, %d commits reverted.\n\n", a.FilesChanged, a.Additions, a.Deletions, a.CommitsReverted)
		for _, warning := range a.Warnings {
			fmt.Fprintf(&sb, "- %s\n", warning)
		}
		if a.Recommendation != "" {
			fmt.Fprintf(&sb, "\n%s\n", a.Recommendation)
		}
	}
	if forced {
		sb.WriteString("\n> Executed with `force`, the safety gate was bypassed.\n")
	}
	return sb.String()
}
