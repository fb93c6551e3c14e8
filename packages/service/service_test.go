package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/state"
	"devflow-autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeLLM struct {
	out     string
	err     error
	prompts []ai.Prompt
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(_ context.Context, p ai.Prompt) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.out, f.err
}

type fakeGitHub struct {
	token  bool
	info   types.RepositoryInfo
	readme string
	files  []types.FileInfo
	head   types.Commit

	metadata     string
	put          []byte
	putSHA       string
	branches     map[string]string
	prErr        error
	pulls        []repository.NewPullRequest
	labels       []string
	snapshotErr  error
	latestCommit *types.Commit
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		token: true,
		info: types.RepositoryInfo{
			Owner: "octo", Name: "hello", FullName: "octo/hello",
			Description: "Says hello", DefaultBranch: "main", Language: "Go",
		},
		readme: "# hello\nA greeting service.",
		files: []types.FileInfo{
			{Path: "main.go", RelativePath: "main.go", Size: 40, Content: []byte("package main\n\nfunc main() {}\n")},
			{Path: "go.mod", RelativePath: "go.mod", Size: 20, Content: []byte("module hello\n\ngo 1.22\n")},
			{Path: "README.md", RelativePath: "README.md", Size: 10, Content: []byte("# hello\n")},
		},
		head:     types.Commit{SHA: "head1", Message: "initial", Date: fixedNow.Add(-time.Hour)},
		branches: map[string]string{},
	}
}

func (f *fakeGitHub) RequireAuth() error {
	if !f.token {
		return repository.CheckToken("", true)
	}
	return nil
}

func (f *fakeGitHub) ListCommits(context.Context, types.RepositoryIdentity, string, int) ([]types.Commit, error) {
	return []types.Commit{f.head}, nil
}

func (f *fakeGitHub) Compare(context.Context, types.RepositoryIdentity, string, string) (*types.Comparison, error) {
	return &types.Comparison{Status: "ahead", AheadBy: 1}, nil
}

func (f *fakeGitHub) BranchHead(_ context.Context, _ types.RepositoryIdentity, branch string) (string, error) {
	if sha, ok := f.branches[branch]; ok {
		return sha, nil
	}
	return f.head.SHA, nil
}

func (f *fakeGitHub) TreeOf(context.Context, types.RepositoryIdentity, string) (string, error) {
	return "tree", nil
}

func (f *fakeGitHub) CommitTree(context.Context, types.RepositoryIdentity, string, string, string) (string, error) {
	return "commit", nil
}

func (f *fakeGitHub) CreateBranch(_ context.Context, _ types.RepositoryIdentity, branch, sha string) error {
	f.branches[branch] = sha
	return nil
}

func (f *fakeGitHub) OpenPullRequest(_ context.Context, _ types.RepositoryIdentity, pr repository.NewPullRequest) (*types.PullRequestRef, error) {
	if f.prErr != nil {
		return nil, f.prErr
	}
	f.pulls = append(f.pulls, pr)
	return &types.PullRequestRef{URL: "https://github.com/octo/hello/pull/7", Number: 7, Branch: pr.Head}, nil
}

func (f *fakeGitHub) AddLabels(_ context.Context, _ types.RepositoryIdentity, _ int, labels ...string) error {
	f.labels = append(f.labels, labels...)
	return nil
}

func (f *fakeGitHub) Repository(context.Context, types.RepositoryIdentity) (*types.RepositoryInfo, error) {
	info := f.info
	return &info, nil
}

func (f *fakeGitHub) Readme(context.Context, types.RepositoryIdentity) (string, error) {
	return f.readme, nil
}

func (f *fakeGitHub) ListDirectory(context.Context, types.RepositoryIdentity, string, string) ([]string, error) {
	return []string{"README.md", "cmd/", "go.mod"}, nil
}

func (f *fakeGitHub) FileContent(context.Context, types.RepositoryIdentity, string, string) (string, string, error) {
	if f.metadata == "" {
		return "", "", nil
	}
	return f.metadata, "blob1", nil
}

func (f *fakeGitHub) PutFile(_ context.Context, _ types.RepositoryIdentity, _, _, _ string, content []byte, sha string) (string, error) {
	f.put = content
	f.putSHA = sha
	return "commit2", nil
}

func (f *fakeGitHub) Snapshot(context.Context, types.RepositoryIdentity, repository.SnapshotOptions) (*repository.Snapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return &repository.Snapshot{HeadSHA: f.head.SHA, Files: f.files}, nil
}

func (f *fakeGitHub) HeadCommit(context.Context, types.RepositoryIdentity, string) (*types.Commit, error) {
	c := f.head
	return &c, nil
}

func (f *fakeGitHub) LatestCommit(context.Context, string) *types.Commit {
	return f.latestCommit
}

func (f *fakeGitHub) CheckForNewPush(_ context.Context, _ string, last string) types.PushCheck {
	return repository.EvaluatePush(f.latestCommit, last)
}

func newTestService(gh *fakeGitHub, llm ai.Generator) (*Service, state.Store) {
	store := state.NewMemoryStore()
	return New(Deps{
		Config: config.Default(),
		GitHub: gh,
		LLM:    llm,
		Store:  store,
		Now:    func() time.Time { return fixedNow },
	}), store
}

const seoJSON = `{"title": "hello: a tiny greeting service", "description": "Says hello over HTTP.", "keywords": ["greeting"], "topics": ["Go", "HTTP Server"]}`

func TestAnalyze(t *testing.T) {
	gh := newFakeGitHub()
	svc, _ := newTestService(gh, nil)

	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{GitHubURL: "https://github.com/octo/hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "octo/hello", resp.RepoInfo.FullName)
	assert.Equal(t, "head1", resp.HeadSHA)
	assert.Equal(t, 3, resp.Metrics.TotalFiles)
	assert.Nil(t, resp.Dependencies)
	assert.Empty(t, resp.AIError)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"metrics":`)
	assert.Contains(t, string(body), `"structure_suggestions":`)
}

func TestAnalyzeWithAI(t *testing.T) {
	gh := newFakeGitHub()
	llm := &fakeLLM{out: `{"recommendations": ["Add a CI workflow", "Add a CI workflow"]}`}
	svc, _ := newTestService(gh, llm)

	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{
		GitHubURL:           "https://github.com/octo/hello",
		AnalysisType:        "AI",
		IncludeDependencies: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Recommendations)
	assert.Equal(t, "Add a CI workflow", resp.Recommendations[0])
	assert.NotNil(t, resp.Dependencies)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0].User, "octo/hello")
}

func TestAnalyzeAIFailureKeepsRuleResults(t *testing.T) {
	svc, _ := newTestService(newFakeGitHub(), nil)

	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{GitHubURL: "https://github.com/octo/hello", AnalysisType: "ai"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.AIError, "unavailable")
}

func TestAnalyzeErrors(t *testing.T) {
	gh := newFakeGitHub()
	svc, _ := newTestService(gh, nil)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, AnalyzeRequest{GitHubURL: "https://gitlab.com/a/b"})
	assert.Equal(t, "invalid_url", types.ErrorKind(err))

	_, err = svc.Analyze(ctx, AnalyzeRequest{GitHubURL: "https://github.com/octo/hello", AnalysisType: "deep"})
	assert.Equal(t, "invalid_request", types.ErrorKind(err))

	gh.snapshotErr = &types.NetworkError{Op: "clone", Err: errors.New("connection reset")}
	_, err = svc.Analyze(ctx, AnalyzeRequest{GitHubURL: "https://github.com/octo/hello"})
	assert.Equal(t, "network", types.ErrorKind(err))
}

func TestSEOGenerateOnly(t *testing.T) {
	gh := newFakeGitHub()
	gh.token = false
	llm := &fakeLLM{out: seoJSON}
	svc, _ := newTestService(gh, llm)

	res, err := svc.SEO(context.Background(), SEORequest{GitHubURL: "https://github.com/octo/hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"go", "http-server"}, res.Metadata.Topics)
	assert.Nil(t, res.PullRequest)
	assert.Empty(t, gh.branches)
	assert.Contains(t, llm.prompts[0].User, "cmd/")
}

func TestSEOApply(t *testing.T) {
	gh := newFakeGitHub()
	gh.metadata = "{}\n"
	svc, store := newTestService(gh, &fakeLLM{out: seoJSON})
	ctx := context.Background()

	res, err := svc.SEO(ctx, SEORequest{GitHubURL: "https://github.com/octo/hello", Apply: true})
	require.NoError(t, err)
	require.NotNil(t, res.PullRequest)
	assert.Equal(t, 7, res.PullRequest.Number)
	assert.Equal(t, "head1", res.HeadSHA)

	branch := fmt.Sprintf("devflow/seo-%d", fixedNow.Unix())
	assert.Equal(t, "head1", gh.branches[branch])
	assert.Equal(t, "blob1", gh.putSHA)

	var written ai.SEOMetadata
	require.NoError(t, json.Unmarshal(gh.put, &written))
	assert.Equal(t, res.Metadata.Title, written.Title)

	require.Len(t, gh.pulls, 1)
	assert.Equal(t, "main", gh.pulls[0].Base)
	assert.Contains(t, gh.pulls[0].Body, "--- a/.devflow/seo-metadata.json")
	assert.Contains(t, gh.pulls[0].Body, `+  "title": "hello: a tiny greeting service",`)
	assert.Equal(t, []string{"devflow-seo"}, gh.labels)

	st, err := store.Get(ctx, types.RepositoryIdentity{Owner: "octo", Name: "hello"})
	require.NoError(t, err)
	assert.False(t, state.NeedsProcessing(st, types.FlagSEOOptimized))
	assert.Equal(t, "head1", st.FlagsSHA)
}

func TestSEOApplyUpToDate(t *testing.T) {
	gh := newFakeGitHub()
	svc, _ := newTestService(gh, &fakeLLM{out: seoJSON})
	first, err := svc.SEO(context.Background(), SEORequest{GitHubURL: "https://github.com/octo/hello"})
	require.NoError(t, err)
	content, err := json.MarshalIndent(first.Metadata, "", "  ")
	require.NoError(t, err)
	gh.metadata = string(content) + "\n"

	res, err := svc.SEO(context.Background(), SEORequest{GitHubURL: "https://github.com/octo/hello", Apply: true})
	require.NoError(t, err)
	assert.Equal(t, "SEO metadata is already up to date", res.Message)
	assert.Empty(t, gh.branches)
}

func TestSEOApplyManualLink(t *testing.T) {
	gh := newFakeGitHub()
	gh.prErr = &types.UpstreamAPIError{Service: "github", StatusCode: 422}
	svc, _ := newTestService(gh, &fakeLLM{out: seoJSON})

	res, err := svc.SEO(context.Background(), SEORequest{GitHubURL: "https://github.com/octo/hello", Apply: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.PullRequest)
	assert.True(t, strings.HasPrefix(res.ManualPRLink, "https://github.com/octo/hello/compare/main..."), res.ManualPRLink)
	assert.Contains(t, res.Message, res.ManualPRLink)
}

func TestSEOErrors(t *testing.T) {
	gh := newFakeGitHub()
	gh.token = false
	svc, _ := newTestService(gh, &fakeLLM{out: seoJSON})
	ctx := context.Background()

	_, err := svc.SEO(ctx, SEORequest{GitHubURL: "https://github.com/octo/hello", Apply: true})
	assert.Equal(t, "auth", types.ErrorKind(err))

	svc, _ = newTestService(newFakeGitHub(), nil)
	_, err = svc.SEO(ctx, SEORequest{GitHubURL: "https://github.com/octo/hello"})
	assert.Equal(t, "service_unavailable", types.ErrorKind(err))

	svc, _ = newTestService(newFakeGitHub(), &fakeLLM{out: "I cannot help with that"})
	_, err = svc.SEO(ctx, SEORequest{GitHubURL: "https://github.com/octo/hello"})
	assert.Equal(t, "parse", types.ErrorKind(err))
}

func TestCheckPush(t *testing.T) {
	gh := newFakeGitHub()
	gh.latestCommit = &types.Commit{SHA: "sha2", Date: fixedNow}
	svc, store := newTestService(gh, nil)
	ctx := context.Background()
	id := types.RepositoryIdentity{Owner: "octo", Name: "hello"}

	check := svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "https://github.com/octo/hello"})
	assert.True(t, check.HasNewPush)
	assert.Empty(t, check.PreviousSHA)

	st, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sha2", st.LastCommitSHA)

	// Without a SHA every fetched commit counts as new.
	check = svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "https://github.com/octo/hello"})
	assert.True(t, check.HasNewPush)
	assert.Empty(t, check.PreviousSHA)

	// The tracked state supplies the previous SHA only when asked to.
	check = svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "https://github.com/octo/hello", UseTrackedState: true})
	assert.False(t, check.HasNewPush)
	assert.Equal(t, "sha2", check.PreviousSHA)

	check = svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "https://github.com/octo/hello", LastKnownSHA: "sha1"})
	assert.True(t, check.HasNewPush)

	gh.latestCommit = nil
	check = svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "https://github.com/octo/hello", LastKnownSHA: "sha1"})
	assert.False(t, check.HasNewPush)
	assert.NotEmpty(t, check.Error)

	check = svc.CheckPush(ctx, PushCheckRequest{GitHubURL: "not a url"})
	assert.False(t, check.HasNewPush)
	assert.NotEmpty(t, check.Error)
}

func TestPostDeployAnalysisWithoutLLM(t *testing.T) {
	svc, _ := newTestService(newFakeGitHub(), nil)

	report, err := svc.PostDeployAnalysis(context.Background(), ai.DeployFailure{
		RuntimeLogs: "panic: runtime error: invalid memory address or nil pointer dereference",
	})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Success)
	assert.Equal(t, "service_unavailable", report.ErrorKind)
	assert.NotEmpty(t, report.DetectedPatterns)
}
