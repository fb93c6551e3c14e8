package state

import (
	"context"
	"strings"

	"devflow-autopilot/packages/metrics"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

type PushOutcome string

const (
	PushNew       PushOutcome = "new"
	PushDuplicate PushOutcome = "duplicate"
	PushStale     PushOutcome = "stale"
)

// Comparer orders two commits of a repository.
type Comparer interface {
	Compare(ctx context.Context, id types.RepositoryIdentity, base, head string) (*types.Comparison, error)
}

// Tracker records pushes so that LastCommitSHA only moves forward and
// processing flags are tied to the commit they were computed for.
type Tracker struct {
	store Store
	cmp   Comparer
}

// NewTracker returns a tracker. cmp may be nil, in which case push
// timestamps decide the order.
func NewTracker(store Store, cmp Comparer) *Tracker {
	return &Tracker{store: store, cmp: cmp}
}

// RecordPush applies a push event. Replays of the current head are
// duplicates; pushes older than the recorded head are stale and ignored.
func (t *Tracker) RecordPush(ctx context.Context, ev types.EventPayload) (*types.RepositoryState, PushOutcome, error) {
	if ev.HeadSHA == "" {
		return nil, "", &types.ValidationError{Field: "head_sha", Reason: "is required"}
	}
	id := types.RepositoryIdentity{Owner: ev.Owner, Name: ev.Name}
	log := clog.FromContext(ctx).With("repo", id.FullName(), "sha", ev.HeadSHA)

	outcome := PushNew
	st, err := t.store.Update(ctx, id, func(st *types.RepositoryState) error {
		switch {
		case st.LastCommitSHA == ev.HeadSHA:
			outcome = PushDuplicate
			return ErrNoChange
		case st.LastCommitSHA != "" && !t.isNewer(ctx, id, st, ev):
			outcome = PushStale
			return ErrNoChange
		}

		st.LastCommitSHA = ev.HeadSHA
		st.LastPushAt = ev.PushedAt
		if branch := strings.TrimPrefix(ev.Ref, "refs/heads/"); branch != "" {
			st.Branch = branch
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	metrics.ObservePush(string(outcome))
	log.Infof("Recorded push: %s", outcome)
	return st, outcome, nil
}

// Observe records a commit found by polling.
func (t *Tracker) Observe(ctx context.Context, id types.RepositoryIdentity, branch string, commit types.Commit) (*types.RepositoryState, PushOutcome, error) {
	ev := types.EventPayload{
		Event:    "poll",
		Owner:    id.Owner,
		Name:     id.Name,
		HeadSHA:  commit.SHA,
		PushedAt: commit.Date,
	}
	if branch != "" {
		ev.Ref = "refs/heads/" + branch
	}
	return t.RecordPush(ctx, ev)
}

func (t *Tracker) isNewer(ctx context.Context, id types.RepositoryIdentity, st *types.RepositoryState, ev types.EventPayload) bool {
	if t.cmp != nil {
		cmp, err := t.cmp.Compare(ctx, id, st.LastCommitSHA, ev.HeadSHA)
		if err == nil {
			switch cmp.Status {
			case "behind", "identical":
				return false
			default:
				// ahead, or diverged after a force push
				return true
			}
		}
		clog.FromContext(ctx).With("repo", id.FullName()).Warnf("Failed to order commits, falling back to push time: %v", err)
	}
	return ev.PushedAt.IsZero() || st.LastPushAt.IsZero() || !ev.PushedAt.Before(st.LastPushAt)
}

// NeedsProcessing reports whether flag has not yet been recorded for the
// repository's current head.
func NeedsProcessing(st *types.RepositoryState, flag string) bool {
	if st == nil {
		return true
	}
	return !(st.Flag(flag) && st.FlagsSHA == st.LastCommitSHA)
}

// MarkProcessed records flag for sha. Flags recorded for an older sha are
// dropped.
func (t *Tracker) MarkProcessed(ctx context.Context, id types.RepositoryIdentity, flag, sha string) (*types.RepositoryState, error) {
	return t.store.Update(ctx, id, func(st *types.RepositoryState) error {
		if st.LastCommitSHA == "" {
			st.LastCommitSHA = sha
		}
		if st.FlagsSHA != sha {
			st.Flags = nil
			st.FlagsSHA = sha
		}
		st.SetFlag(flag, true)
		return nil
	})
}

// State returns the stored state of id, or nil.
func (t *Tracker) State(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryState, error) {
	return t.store.Get(ctx, id)
}
