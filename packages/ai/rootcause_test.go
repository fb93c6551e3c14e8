package ai

import (
	"context"
	"encoding/json"
	"testing"

	"devflow-autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverDiff = `diff --git a/app/server.py b/app/server.py
index 1111111..2222222 100644
--- a/app/server.py
+++ b/app/server.py
@@ -10,3 +10,4 @@ def handler():
     x = 1
-    y = 2
+    y = None
+    z = y.value
     return x
diff --git a/README.md b/README.md
index 3333333..4444444 100644
--- a/README.md
+++ b/README.md
@@ -1,1 +1,1 @@
-# Old
+# New
`

const serverLogs = `2026-03-01T10:00:00Z INFO starting worker
Traceback (most recent call last):
  File "/srv/app/server.py", line 12, in handler
    z = y.value
AttributeError: 'NoneType' object has no attribute 'value'
`

func TestParseDiff(t *testing.T) {
	files, err := ParseDiff(serverDiff)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "app/server.py", files[0].Path)
	assert.Len(t, files[0].AddedLines, 2)
	assert.Equal(t, 1, files[0].Removed)
	assert.Equal(t, "README.md", files[1].Path)

	files, err = ParseDiff("   ")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDetectPatterns(t *testing.T) {
	got := DetectPatterns("runtime", serverLogs)
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"unhandled_exception", "nil_dereference"}, names)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, "runtime", got[0].Source)

	got = DetectPatterns("pipeline", "Error: listen EADDRINUSE: address already in use :::3000\nprocess exited with code 1")
	require.Len(t, got, 2)
	assert.Equal(t, "port_in_use", got[0].Name)
	assert.Equal(t, "non_zero_exit", got[1].Name)

	assert.Empty(t, DetectPatterns("runtime", "all good"))
}

func TestExtractFrames(t *testing.T) {
	logs := `goroutine 1 [running]:
main.handler()
	/app/cmd/api/main.go:42 +0x1d
    at render (/app/src/view.js:10:5)
	at com.acme.App.run(App.java:7)
  File "/srv/app/server.py", line 12, in handler`

	assert.ElementsMatch(t, []StackFrame{
		{File: "/srv/app/server.py", Line: 12},
		{File: "App.java", Line: 7},
		{File: "app/src/view.js", Line: 10},
		{File: "app/cmd/api/main.go", Line: 42},
	}, ExtractFrames(logs))
}

func TestCorrelate(t *testing.T) {
	changed := []ChangedFile{
		{Path: "app/server.py", AddedLines: []int{11, 12}},
		{Path: "app/util.py", AddedLines: []int{3}},
	}

	file, line := Correlate(changed, []StackFrame{{File: "/srv/app/util.py", Line: 90}, {File: "/srv/app/server.py", Line: 12}})
	assert.Equal(t, "app/server.py", file)
	assert.Equal(t, 12, line)

	file, _ = Correlate(changed, []StackFrame{{File: "lib/other.py", Line: 1}})
	assert.Empty(t, file)

	file, line = Correlate(changed[:1], nil)
	assert.Equal(t, "app/server.py", file)
	assert.Equal(t, 11, line)
}

func TestRootCauseAnalyze(t *testing.T) {
	g := &fakeGenerator{out: `{
		"summary": "Requests crash in handler.",
		"root_cause": "y is set to None before y.value is read",
		"affected_file": "",
		"affected_line": "12",
		"impact": "Every request returns 500",
		"confidence": "85%",
		"suggested_fix": "Restore y = 2"
	}`}

	report, err := NewRootCauseAnalyzer(g).Analyze(context.Background(), DeployFailure{
		GitDiff:       serverDiff,
		RuntimeLogs:   serverLogs,
		DeploymentEnv: "production",
	})
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, "app/server.py", report.AffectedFile)
	assert.Equal(t, 12, report.AffectedLine)
	assert.InDelta(t, 0.85, report.Confidence, 1e-9)
	assert.Equal(t, "Restore y = 2", report.SuggestedFix)
	assert.Len(t, report.DetectedPatterns, 2)
	assert.Equal(t, []string{"app/server.py", "README.md"}, report.ChangedFiles)

	prompt := g.prompts[0].User
	assert.Contains(t, prompt, "production environment")
	assert.Contains(t, prompt, "app/server.py:12")
}

func TestRootCauseAnalyzeModelFailure(t *testing.T) {
	g := &fakeGenerator{err: &types.UpstreamAPIError{Service: "fake", StatusCode: 503}}

	report, err := NewRootCauseAnalyzer(g).Analyze(context.Background(), DeployFailure{
		GitDiff:     serverDiff,
		RuntimeLogs: serverLogs,
	})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Success)
	assert.Equal(t, "upstream_api", report.ErrorKind)
	assert.Len(t, report.DetectedPatterns, 2)
	assert.Equal(t, "app/server.py", report.AffectedFile)
}

func TestRootCauseAnalyzeWithoutProvider(t *testing.T) {
	report, err := NewRootCauseAnalyzer(nil).Analyze(context.Background(), DeployFailure{RuntimeLogs: "panic: boom"})
	require.Error(t, err)
	assert.Equal(t, "service_unavailable", report.ErrorKind)
	assert.Equal(t, "go_panic", report.DetectedPatterns[0].Name)
}

func TestRootCauseAnalyzeRequiresEvidence(t *testing.T) {
	report, err := NewRootCauseAnalyzer(&fakeGenerator{}).Analyze(context.Background(), DeployFailure{DeploymentEnv: "staging"})
	assert.Nil(t, report)
	assert.Equal(t, "invalid_request", types.ErrorKind(err))
}

func TestParseConfidence(t *testing.T) {
	tests := map[string]float64{
		`0.7`:      0.7,
		`"0.7"`:    0.7,
		`"85%"`:    0.85,
		`85`:       0.85,
		`"high"`:   0.8,
		`-1`:       0,
		`null`:     0,
		`"unsure"`: 0,
	}
	for in, want := range tests {
		assert.InDelta(t, want, parseConfidence(json.RawMessage(in)), 1e-9, in)
	}
}
