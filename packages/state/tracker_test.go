package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"devflow-autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagWorkflow = "workflow_optimized"

type fakeComparer struct {
	status map[string]string // "base...head" -> status
	err    error
	calls  int
}

func (f *fakeComparer) Compare(_ context.Context, _ types.RepositoryIdentity, base, head string) (*types.Comparison, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Comparison{Status: f.status[base+"..."+head]}, nil
}

func push(sha string, at time.Time) types.EventPayload {
	return types.EventPayload{Event: "push", Owner: octo.Owner, Name: octo.Name, Ref: "refs/heads/main", HeadSHA: sha, PushedAt: at}
}

func TestTracker_RecordPush(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmp := &fakeComparer{status: map[string]string{
		"a...b": "ahead",
		"b...a": "behind",
	}}
	tr := NewTracker(NewMemoryStore(), cmp)

	st, outcome, err := tr.RecordPush(ctx, push("a", t0))
	require.NoError(t, err)
	assert.Equal(t, PushNew, outcome)
	assert.Equal(t, "a", st.LastCommitSHA)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, 0, cmp.calls, "first push needs no ordering")

	_, outcome, err = tr.RecordPush(ctx, push("a", t0))
	require.NoError(t, err)
	assert.Equal(t, PushDuplicate, outcome)

	st, outcome, err = tr.RecordPush(ctx, push("b", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, PushNew, outcome)
	assert.Equal(t, "b", st.LastCommitSHA)

	// A delayed delivery of the older push must not move the head back.
	st, outcome, err = tr.RecordPush(ctx, push("a", t0))
	require.NoError(t, err)
	assert.Equal(t, PushStale, outcome)
	assert.Equal(t, "b", st.LastCommitSHA)
}

func TestTracker_RecordPushWithoutComparer(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(NewMemoryStore(), nil)

	_, _, err := tr.RecordPush(ctx, push("new", t0))
	require.NoError(t, err)

	st, outcome, err := tr.RecordPush(ctx, push("old", t0.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, PushStale, outcome)
	assert.Equal(t, "new", st.LastCommitSHA)
}

func TestTracker_CompareFailureFallsBackToPushTime(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(NewMemoryStore(), &fakeComparer{err: errors.New("rate limited")})

	_, _, err := tr.RecordPush(ctx, push("a", t0))
	require.NoError(t, err)

	st, outcome, err := tr.RecordPush(ctx, push("b", t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, PushNew, outcome)
	assert.Equal(t, "b", st.LastCommitSHA)
}

func TestTracker_RecordPushRequiresSHA(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), nil)
	_, _, err := tr.RecordPush(context.Background(), push("", time.Now()))
	assert.Equal(t, "invalid_request", types.ErrorKind(err))
}

func TestTracker_Flags(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(NewMemoryStore(), &fakeComparer{status: map[string]string{"a...b": "ahead"}})

	st, err := tr.State(ctx, octo)
	require.NoError(t, err)
	assert.True(t, NeedsProcessing(st, types.FlagSEOOptimized))

	st, _, err = tr.RecordPush(ctx, push("a", t0))
	require.NoError(t, err)
	assert.True(t, NeedsProcessing(st, types.FlagSEOOptimized))

	st, err = tr.MarkProcessed(ctx, octo, types.FlagSEOOptimized, "a")
	require.NoError(t, err)
	assert.False(t, NeedsProcessing(st, types.FlagSEOOptimized))
	assert.True(t, NeedsProcessing(st, flagWorkflow))

	// A new head invalidates flags recorded for the previous one.
	st, _, err = tr.RecordPush(ctx, push("b", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, NeedsProcessing(st, types.FlagSEOOptimized))

	st, err = tr.MarkProcessed(ctx, octo, flagWorkflow, "b")
	require.NoError(t, err)
	assert.False(t, st.Flag(types.FlagSEOOptimized), "flags for a are dropped")
	assert.True(t, st.Flag(flagWorkflow))
}

func TestTracker_Observe(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), nil)

	st, outcome, err := tr.Observe(ctx, octo, "develop", types.Commit{SHA: "c1", Date: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, PushNew, outcome)
	assert.Equal(t, "develop", st.Branch)
	assert.Equal(t, "c1", st.LastCommitSHA)
}
