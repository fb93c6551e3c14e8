package analyzer

import (
	"strings"
	"testing"

	"devflow-autopilot/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(p, content string) types.FileInfo {
	return types.FileInfo{Path: p, RelativePath: p, Size: int64(len(content)), Content: []byte(content)}
}

func TestRulesIgnored(t *testing.T) {
	rules := NewRules("# comment\n*.log\nsecrets/\n/generated\n!keep.log\nbuild-*/**/*.map\n", []string{"docs/*.md", "**/fixtures/**"})

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"debug.log", true},
		{"nested/app.log", true},
		{"keep.log", false},
		{"nested/keep.log", false},
		{"build-web/js/app.js.map", true},
		{"build-web/js/app.js", false},
		{"internal/store/testdata/fixtures/a.json", true},
		{"src/generated/out.go", false},
		{"secrets/key.txt", true},
		{"generated/out.go", true},
		{"docs/intro.md", true},
		{"docs/diagram.txt", false},
		{"node_modules/react/index.js", true},
		{"src/node_modules/x.js", true},
		{"go.sum", true},
		{"assets/logo.png", true},
		{".env", true},
		{".env.example", false},
		{".gitignore", false},
		{".github/workflows/ci.yml", false},
		{".secret", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Ignored(tt.path))
		})
	}
}

func TestListOnly(t *testing.T) {
	assert.True(t, ListOnly("node_modules/x/index.js"))
	assert.True(t, ListOnly("img/logo.png"))
	assert.False(t, ListOnly("src/main.go"))
}

func TestLanguageOf(t *testing.T) {
	assert.Equal(t, "go", LanguageOf("cmd/main.go"))
	assert.Equal(t, "typescript", LanguageOf("web/App.TSX"))
	assert.Equal(t, "dockerfile", LanguageOf("deploy/Dockerfile"))
	assert.Equal(t, "", LanguageOf("LICENSE"))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, isBinary([]byte("package main\n")))
	assert.True(t, isBinary([]byte{'a', 0, 'b'}))
	assert.True(t, isBinary([]byte{1, 2, 3, 4, 'a'}))
	assert.False(t, isBinary(nil))
}

func TestAnalyzeMetrics(t *testing.T) {
	files := []types.FileInfo{
		file("README.md", "# demo\n"),
		file("LICENSE", "MIT\n"),
		file(".gitignore", "*.log\n"),
		file(".github/workflows/ci.yml", "on: push\n"),
		file("cmd/app/main.go", "package main\n\nfunc main() {}\n"),
		file("internal/store/store.go", "package store\n"),
		file("internal/store/store_test.go", "package store\n"),
		file("web/index.js", "console.log(1)"),
		file("server.log", "noise\n"),
	}

	report := Analyze(files, Options{})

	m := report.Metrics
	assert.Equal(t, 9, m.TotalFiles)
	assert.Equal(t, 8, m.AnalyzedFiles)
	assert.Equal(t, 1, m.IgnoredFiles)
	assert.Equal(t, 1, m.TestFiles)
	assert.Equal(t, 4, m.CodeFiles)
	assert.Equal(t, LanguageStat{Files: 3, Lines: 5, Bytes: int64(len("package main\n\nfunc main() {}\n") + 2*len("package store\n"))}, m.Languages["go"])
	assert.Equal(t, 1, m.Languages["javascript"].Lines)

	names := []string{}
	for _, d := range m.KeyDirectories {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{".github", "cmd", "internal"}, names); diff != "" {
		t.Errorf("key directories (-want +got):\n%s", diff)
	}

	assert.Empty(t, report.StructureSuggestions)
	assert.Nil(t, report.Dependencies)
	assert.Contains(t, report.Recommendations, "Most code is go; keep linters and formatters for it in CI")
}

func TestAnalyzeSuggestions(t *testing.T) {
	files := []types.FileInfo{
		file("app.py", "import os\n"),
		file(".env", "TOKEN=1\n"),
		file("node_modules/left-pad/index.js", "module.exports = 1\n"),
		file(".DS_Store", "x"),
		{Path: "video.mp4", RelativePath: "video.mp4", Size: 2 << 20},
	}

	report := Analyze(files, Options{LargeFileBytes: 1 << 20})

	structure := categories(report.StructureSuggestions)
	assert.ElementsMatch(t, []string{"documentation", "documentation", "testing", "ci"}, structure)

	cleanup := map[string]Suggestion{}
	for _, s := range report.CleanupSuggestions {
		cleanup[s.Category] = s
	}
	require.Contains(t, cleanup, "artifacts")
	assert.Equal(t, []string{"node_modules/"}, cleanup["artifacts"].Paths)
	assert.Equal(t, []string{".env"}, cleanup["secrets"].Paths)
	assert.Equal(t, []string{".DS_Store"}, cleanup["junk"].Paths)
	assert.Equal(t, []string{"video.mp4"}, cleanup["large_files"].Paths)
	assert.Contains(t, cleanup, "gitignore")

	assert.GreaterOrEqual(t, len(report.Recommendations), len(report.StructureSuggestions)+len(report.CleanupSuggestions))
}

func TestAnalyzeManyRootFiles(t *testing.T) {
	var files []types.FileInfo
	for i := 0; i < 16; i++ {
		files = append(files, file("f"+strings.Repeat("x", i)+".go", "package x\n"))
	}
	report := Analyze(files, Options{})
	assert.Contains(t, categories(report.StructureSuggestions), "layout")
}

func TestAnalyzeDependencies(t *testing.T) {
	files := []types.FileInfo{
		file("go.mod", "module example.com/demo\n\ngo 1.22\n\nrequire (\n\tgithub.com/stretchr/testify v1.9.0\n\tgolang.org/x/sync v0.7.0 // indirect\n)\n\nrequire github.com/google/go-cmp v0.6.0\n"),
		file("package.json", `{"dependencies": {"react": "^18.0.0"}, "devDependencies": {"jest": "29"}}`),
		file("requirements.txt", "requests==2.31.0\n# comment\nflask>=2\n-r other.txt\n"),
		file("main.go", "package main\n\nimport (\n\t\"fmt\"\n\tlog \"log/slog\"\n)\n"),
		file("single.go", "package main\n\nimport \"os\"\n"),
		file("web/app.js", "import React from 'react';\nconst x = require(\"lodash\");\n"),
		file("tool.py", "import os, sys\nfrom pathlib import Path\n"),
	}

	report := Analyze(files, Options{IncludeDependencies: true})
	require.NotNil(t, report.Dependencies)

	imports := map[string][]string{}
	for _, n := range report.Dependencies.Graph {
		imports[n.File] = n.Imports
	}
	assert.Equal(t, []string{"fmt", "log/slog"}, imports["main.go"])
	assert.Equal(t, []string{"os"}, imports["single.go"])
	assert.Equal(t, []string{"react", "lodash"}, imports["web/app.js"])
	assert.Equal(t, []string{"os", "sys", "pathlib"}, imports["tool.py"])

	manifest := map[string]ManifestDependency{}
	for _, d := range report.Dependencies.Manifests {
		manifest[d.Name] = d
	}
	assert.Equal(t, "v1.9.0", manifest["github.com/stretchr/testify"].Version)
	assert.Equal(t, "v0.7.0", manifest["golang.org/x/sync"].Version)
	assert.Equal(t, "v0.6.0", manifest["github.com/google/go-cmp"].Version)
	assert.Equal(t, "npm", manifest["react"].Ecosystem)
	assert.True(t, manifest["jest"].Dev)
	assert.Equal(t, "==2.31.0", manifest["requests"].Version)
	assert.Equal(t, ">=2", manifest["flask"].Version)
	assert.NotContains(t, manifest, "-r other.txt")
}

func categories(s []Suggestion) []string {
	out := []string{}
	for _, x := range s {
		out = append(out, x.Category)
	}
	return out
}
