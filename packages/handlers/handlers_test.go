package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"

	"github.com/google/go-github/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var octo = types.RepositoryIdentity{Owner: "octo", Name: "hello"}

func TestPushPayload(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ev := &github.PushEvent{
		Ref:        github.String("refs/heads/main"),
		After:      github.String("sha2"),
		Repo:       &github.PushEventRepository{FullName: github.String("octo/hello")},
		Sender:     &github.User{Login: github.String("octocat")},
		HeadCommit: &github.PushEventCommit{Timestamp: &github.Timestamp{Time: ts}},
	}
	payload, ok := pushPayload(ev)
	require.True(t, ok)
	assert.Equal(t, types.EventPayload{
		Event: "push", Owner: "octo", Name: "hello", Ref: "refs/heads/main",
		HeadSHA: "sha2", PushedAt: ts, Sender: "octocat",
	}, payload)

	ev.Ref = github.String("refs/tags/v1.0.0")
	_, ok = pushPayload(ev)
	assert.False(t, ok, "tag push")

	ev.Ref = github.String("refs/heads/main")
	ev.Deleted = github.Bool(true)
	_, ok = pushPayload(ev)
	assert.False(t, ok, "branch deletion")
}

type githubStub struct {
	repoHits atomic.Int32
}

func newGitHubStub(t *testing.T) (*githubStub, *repository.Client) {
	t.Helper()
	stub := &githubStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		stub.repoHits.Add(1)
		fmt.Fprint(w, `{"name": "hello", "full_name": "octo/hello", "default_branch": "main"}`)
	})
	mux.HandleFunc("/repos/octo/hello/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Go": 1000}`)
	})
	mux.HandleFunc("/repos/octo/hello/readme", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})
	mux.HandleFunc("/repos/octo/hello/contents/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/repos/octo/hello/compare/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ahead", "ahead_by": 1, "files": []}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := repository.NewClient(config.GitHubConfig{
		Token:          "ghp_test",
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return stub, client
}

func newTestHandlers(seoOnPush bool) (*Handlers, state.Store) {
	cfg := config.Default()
	cfg.Automation.SEOOnPush = seoOnPush
	store := state.NewMemoryStore()
	return New(cfg, store, nil, nil), store
}

func (h *Handlers) testService(gh service.GitHub) *service.Service {
	return service.New(service.Deps{Config: h.cfg, GitHub: gh, Store: h.store})
}

func push(sha, ref string) types.EventPayload {
	return types.EventPayload{Event: "push", Owner: "octo", Name: "hello", Ref: ref, HeadSHA: sha}
}

func TestProcessPushTracksHead(t *testing.T) {
	_, client := newGitHubStub(t)
	h, store := newTestHandlers(false)
	svc := h.testService(client)
	ctx := context.Background()

	require.NoError(t, h.processPush(ctx, svc, push("sha1", "refs/heads/feature"), "main"))
	st, err := store.Get(ctx, octo)
	require.NoError(t, err)
	assert.Nil(t, st, "untracked branch is ignored")

	require.NoError(t, h.processPush(ctx, svc, push("sha1", "refs/heads/main"), "main"))
	require.NoError(t, h.processPush(ctx, svc, push("sha1", "refs/heads/main"), "main"))
	require.NoError(t, h.processPush(ctx, svc, push("sha2", "refs/heads/main"), "main"))

	st, err = store.Get(ctx, octo)
	require.NoError(t, err)
	assert.Equal(t, "sha2", st.LastCommitSHA)
	assert.Equal(t, "main", st.Branch)
}

func TestProcessPushRefreshesSEOOncePerHead(t *testing.T) {
	stub, client := newGitHubStub(t)
	h, _ := newTestHandlers(true)
	svc := h.testService(client)
	ctx := context.Background()

	_, err := svc.Tracker().MarkProcessed(ctx, octo, types.FlagSEOOptimized, "sha1")
	require.NoError(t, err)

	require.NoError(t, h.processPush(ctx, svc, push("sha1", "refs/heads/main"), "main"))
	assert.Zero(t, stub.repoHits.Load(), "SEO already done for sha1")

	// No model is configured, so the attempted refresh reports it.
	err = h.processPush(ctx, svc, push("sha2", "refs/heads/main"), "main")
	require.Error(t, err)
	assert.Equal(t, "service_unavailable", types.ErrorKind(err))
	assert.NotZero(t, stub.repoHits.Load())
}

type fakeSetup struct {
	labels []config.LabelConfig
	head   types.Commit
}

func (f *fakeSetup) EnsureLabels(_ context.Context, _ types.RepositoryIdentity, labels []config.LabelConfig) error {
	f.labels = labels
	return nil
}

func (f *fakeSetup) HeadCommit(context.Context, types.RepositoryIdentity, string) (*types.Commit, error) {
	c := f.head
	return &c, nil
}

func TestSetupRepository(t *testing.T) {
	h, store := newTestHandlers(false)
	gh := &fakeSetup{head: types.Commit{SHA: "abc1234", Date: time.Now()}}
	ctx := context.Background()

	require.NoError(t, h.setupRepository(ctx, gh, state.NewTracker(store, nil), "octo/hello"))
	assert.Equal(t, h.cfg.Labels, gh.labels)

	st, err := store.Get(ctx, octo)
	require.NoError(t, err)
	assert.Equal(t, "abc1234", st.LastCommitSHA)

	assert.Error(t, h.setupRepository(ctx, gh, state.NewTracker(store, nil), "nobody"))
}
