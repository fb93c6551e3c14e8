package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/analyzer"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	analyzeErr error
	report     *ai.RootCauseReport
	reportErr  error
	candidates []types.RollbackCandidate
	safety     types.SafetyAssessment
	safetyErr  error
	execute    types.RollbackResult
	seoErr     error

	gotCandidates rollback.CandidatesRequest
	gotExecute    rollback.ExecuteRequest
}

func (f *fakeAPI) Analyze(_ context.Context, req service.AnalyzeRequest) (*service.AnalyzeResponse, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &service.AnalyzeResponse{
		Success:  true,
		RepoInfo: &types.RepositoryInfo{FullName: "octo/hello"},
		Report:   &analyzer.Report{Metrics: analyzer.Metrics{TotalFiles: 3}},
	}, nil
}

func (f *fakeAPI) PostDeployAnalysis(context.Context, ai.DeployFailure) (*ai.RootCauseReport, error) {
	return f.report, f.reportErr
}

func (f *fakeAPI) Candidates(_ context.Context, req rollback.CandidatesRequest) ([]types.RollbackCandidate, error) {
	f.gotCandidates = req
	return f.candidates, nil
}

func (f *fakeAPI) SafetyCheck(context.Context, rollback.SafetyRequest) (types.SafetyAssessment, error) {
	return f.safety, f.safetyErr
}

func (f *fakeAPI) ExecuteRollback(_ context.Context, req rollback.ExecuteRequest) types.RollbackResult {
	f.gotExecute = req
	return f.execute
}

func (f *fakeAPI) SEO(_ context.Context, req service.SEORequest) (*service.SEOResult, error) {
	if f.seoErr != nil {
		return nil, f.seoErr
	}
	return &service.SEOResult{Success: true, Repository: "octo/hello", Metadata: &ai.SEOMetadata{Title: "hello"}}, nil
}

func (f *fakeAPI) CheckPush(_ context.Context, req service.PushCheckRequest) types.PushCheck {
	return types.PushCheck{HasNewPush: req.LastKnownSHA != "abc", Latest: &types.Commit{SHA: "abc"}, PreviousSHA: req.LastKnownSHA}
}

func newTestServer(api API) *httptest.Server {
	cfg := config.Default().Server
	cfg.MaxBodyBytes = 1024
	srv := httptest.NewServer(New(api, cfg))
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(&fakeAPI{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnalyze(t *testing.T) {
	api := &fakeAPI{}
	srv := newTestServer(api)
	defer srv.Close()

	code, body := post(t, srv, "/analyze/", `{"github_url": "https://github.com/octo/hello"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "metrics")

	api.analyzeErr = &types.InvalidURLError{URL: "x", Reason: "bad"}
	code, body = post(t, srv, "/analyze/", `{"github_url": "x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid_url", body["error_kind"])

	api.analyzeErr = &types.NetworkError{Op: "clone", Err: errors.New("reset")}
	code, body = post(t, srv, "/analyze/", `{"github_url": "https://github.com/octo/hello"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "network", body["error_kind"])
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeAPI{})
	defer srv.Close()

	code, body := post(t, srv, "/api/rollback/candidates", `{"repo_owner":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body["error_kind"])

	code, body = post(t, srv, "/api/seo", `{"github_url": "`+strings.Repeat("a", 2048)+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "too large")
}

func TestPostDeployAnalysis(t *testing.T) {
	api := &fakeAPI{report: &ai.RootCauseReport{Success: true, RootCause: "nil map", DetectedPatterns: []ai.LogPattern{}}}
	srv := newTestServer(api)
	defer srv.Close()

	code, body := post(t, srv, "/api/post-deploy-analysis", `{"git_diff": "", "runtime_logs": "panic"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "nil map", body["root_cause"])

	api.report = &ai.RootCauseReport{Error: "llm is unavailable", ErrorKind: "service_unavailable", DetectedPatterns: []ai.LogPattern{}}
	api.reportErr = &types.ServiceUnavailableError{Service: "llm"}
	code, body = post(t, srv, "/api/post-deploy-analysis", `{"runtime_logs": "panic"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "service_unavailable", body["error_kind"])

	api.report = nil
	api.reportErr = &types.ValidationError{Field: "runtime_logs", Reason: "required"}
	code, _ = post(t, srv, "/api/post-deploy-analysis", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRollbackRoutes(t *testing.T) {
	api := &fakeAPI{
		candidates: []types.RollbackCandidate{{Commit: types.Commit{SHA: "abc", TreeSHA: "tree-abc"}, RollbackNumber: 1}},
		safety:     types.SafetyAssessment{RiskLevel: types.RiskMedium, RollbackNumber: 2, Warnings: []string{"w"}},
		execute:    types.RollbackResult{Success: true, PullRequest: &types.PullRequestRef{Number: 9}},
	}
	srv := newTestServer(api)
	defer srv.Close()

	code, body := post(t, srv, "/api/rollback/candidates", `{"repo_owner": "octo", "repo_name": "hello", "limit": 5}`)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body["candidates"], 1)
	first := body["candidates"].([]any)[0].(map[string]any)
	assert.Equal(t, "tree-abc", first["tree_sha"])
	assert.Equal(t, rollback.CandidatesRequest{Owner: "octo", Name: "hello", Limit: 5}, api.gotCandidates)

	code, body = post(t, srv, "/api/rollback/safety-check", `{"repo_owner": "octo", "repo_name": "hello", "rollback_number": 2}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "MEDIUM", body["risk_level"])

	api.safety = types.SafetyAssessment{RiskLevel: types.RiskUnknown}
	api.safetyErr = &types.UpstreamAPIError{Service: "github", StatusCode: 502}
	code, body = post(t, srv, "/api/rollback/safety-check", `{"repo_owner": "octo", "repo_name": "hello", "rollback_number": 2}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "UNKNOWN", body["risk_level"])
	assert.Equal(t, "upstream_api", body["error_kind"])

	code, body = post(t, srv, "/api/rollback/execute", `{"repo_owner": "octo", "repo_name": "hello", "rollback_number": 2, "force": true}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.True(t, api.gotExecute.Force)

	api.execute = types.RollbackResult{Message: "rollback_number out of range", ErrorKind: "invalid_request"}
	code, body = post(t, srv, "/api/rollback/execute", `{"repo_owner": "octo", "repo_name": "hello", "rollback_number": 99}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
}

func TestSEOAndPushCheck(t *testing.T) {
	api := &fakeAPI{}
	srv := newTestServer(api)
	defer srv.Close()

	code, body := post(t, srv, "/api/seo", `{"github_url": "https://github.com/octo/hello"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello", body["metadata"].(map[string]any)["title"])

	api.seoErr = &types.AuthError{Reason: "token required"}
	code, body = post(t, srv, "/api/seo", `{"github_url": "https://github.com/octo/hello", "apply": true}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "auth", body["error_kind"])

	code, body = post(t, srv, "/api/push/check", `{"github_url": "https://github.com/octo/hello", "last_known_sha": "old"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_new_push"])
	assert.Equal(t, "old", body["previous_sha"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(&fakeAPI{})
	defer srv.Close()

	code, _ := post(t, srv, "/api/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, code)

	resp, err := http.Get(srv.URL + "/api/seo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
