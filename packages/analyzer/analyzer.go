// Package analyzer derives repository metrics and housekeeping suggestions
// from a snapshot of its files.
package analyzer

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"devflow-autopilot/types"
)

type Options struct {
	ExcludePatterns     []string
	IncludeDependencies bool
	LargeFileBytes      int64
}

type LanguageStat struct {
	Files int   `json:"files"`
	Lines int   `json:"lines"`
	Bytes int64 `json:"bytes"`
}

type FileStat struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

type Metrics struct {
	TotalFiles     int                     `json:"total_files"`
	AnalyzedFiles  int                     `json:"analyzed_files"`
	IgnoredFiles   int                     `json:"ignored_files"`
	TotalLines     int                     `json:"total_lines"`
	TotalBytes     int64                   `json:"total_bytes"`
	CodeFiles      int                     `json:"code_files"`
	TestFiles      int                     `json:"test_files"`
	MaxDepth       int                     `json:"max_depth"`
	Languages      map[string]LanguageStat `json:"languages"`
	LargestFiles   []FileStat              `json:"largest_files"`
	KeyDirectories []KeyDirectory          `json:"key_directories"`
}

// KeyDirectory is a well known top level directory and what it usually holds.
type KeyDirectory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Suggestion struct {
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Paths    []string `json:"paths,omitempty"`
}

type Report struct {
	Metrics              Metrics       `json:"metrics"`
	StructureSuggestions []Suggestion  `json:"structure_suggestions"`
	CleanupSuggestions   []Suggestion  `json:"cleanup_suggestions"`
	Recommendations      []string      `json:"recommendations"`
	Dependencies         *Dependencies `json:"dependencies,omitempty"`
}

var keyDirectoryPatterns = map[string]string{
	"src":         "Source code directory",
	"lib":         "Library code",
	"app":         "Application code",
	"cmd":         "Command entry points",
	"internal":    "Private application packages",
	"pkg":         "Public library packages",
	"components":  "UI components",
	"pages":       "Application pages",
	"utils":       "Utility functions",
	"config":      "Configuration files",
	"docs":        "Documentation",
	"tests":       "Test files",
	"test":        "Test files",
	"__tests__":   "Test files",
	"packages":    "Package/module code",
	"handlers":    "Request handlers",
	"types":       "Type definitions",
	"models":      "Data models",
	"services":    "Service layer",
	"controllers": "Controllers",
	"middleware":  "Middleware functions",
	"routes":      "Route definitions",
	"public":      "Public assets",
	"static":      "Static files",
	"assets":      "Asset files",
	"scripts":     "Automation scripts",
	".github":     "GitHub workflows and templates",
}

// Committed artifacts that belong in .gitignore.
var artifactDirs = []string{"node_modules", "dist", "build", "out", "target", "__pycache__", ".venv", "venv", "coverage", "vendor"}

// Analyze computes the report for files. .gitignore content is taken from
// the snapshot itself.
func Analyze(files []types.FileInfo, opts Options) *Report {
	gitignore := ""
	for _, f := range files {
		if f.RelativePath == ".gitignore" {
			gitignore = string(f.Content)
		}
	}
	rules := NewRules(gitignore, opts.ExcludePatterns)

	report := &Report{
		Metrics: Metrics{
			TotalFiles: len(files),
			Languages:  map[string]LanguageStat{},
		},
		StructureSuggestions: []Suggestion{},
		CleanupSuggestions:   []Suggestion{},
		Recommendations:      []string{},
	}

	var analyzed []types.FileInfo
	for _, f := range files {
		if rules.Ignored(f.RelativePath) {
			report.Metrics.IgnoredFiles++
			continue
		}
		if f.Language == "" {
			f.Language = LanguageOf(f.RelativePath)
		}
		if !f.Binary && f.Content != nil && isBinary(f.Content) {
			f.Binary = true
		}
		analyzed = append(analyzed, f)
	}

	collectMetrics(&report.Metrics, analyzed)
	report.StructureSuggestions = structureSuggestions(files, analyzed, &report.Metrics)
	report.CleanupSuggestions = cleanupSuggestions(files, analyzed, opts)
	report.Recommendations = recommendations(report)

	if opts.IncludeDependencies {
		report.Dependencies = buildDependencies(analyzed)
	}
	return report
}

func collectMetrics(m *Metrics, files []types.FileInfo) {
	m.AnalyzedFiles = len(files)
	topDirs := map[string]bool{}

	for _, f := range files {
		m.TotalBytes += f.Size

		if depth := strings.Count(f.RelativePath, "/"); depth > m.MaxDepth {
			m.MaxDepth = depth
		}
		if dir, _, found := strings.Cut(f.RelativePath, "/"); found {
			topDirs[dir] = true
		}

		if isTestFile(f.RelativePath) {
			m.TestFiles++
		}
		if codeLanguages[f.Language] {
			m.CodeFiles++
		}

		lineCount := 0
		if !f.Binary && len(f.Content) > 0 {
			lineCount = bytes.Count(f.Content, []byte("\n"))
			if !bytes.HasSuffix(f.Content, []byte("\n")) {
				lineCount++
			}
		}
		m.TotalLines += lineCount

		if f.Language != "" {
			stat := m.Languages[f.Language]
			stat.Files++
			stat.Lines += lineCount
			stat.Bytes += f.Size
			m.Languages[f.Language] = stat
		}
	}

	largest := make([]FileStat, 0, len(files))
	for _, f := range files {
		largest = append(largest, FileStat{Path: f.RelativePath, Bytes: f.Size})
	}
	sort.SliceStable(largest, func(i, j int) bool { return largest[i].Bytes > largest[j].Bytes })
	if len(largest) > 10 {
		largest = largest[:10]
	}
	m.LargestFiles = largest

	m.KeyDirectories = []KeyDirectory{}
	for dir := range topDirs {
		if desc, ok := keyDirectoryPatterns[dir]; ok {
			m.KeyDirectories = append(m.KeyDirectories, KeyDirectory{Name: dir, Description: desc})
		}
	}
	sort.Slice(m.KeyDirectories, func(i, j int) bool { return m.KeyDirectories[i].Name < m.KeyDirectories[j].Name })
}

func isTestFile(p string) bool {
	base := path.Base(p)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	}
	for _, part := range strings.Split(path.Dir(p), "/") {
		if part == "test" || part == "tests" || part == "__tests__" || part == "spec" {
			return true
		}
	}
	return false
}

func hasFile(files []types.FileInfo, match func(p string) bool) bool {
	for _, f := range files {
		if match(f.RelativePath) {
			return true
		}
	}
	return false
}

func rootFileNamed(prefixes ...string) func(string) bool {
	return func(p string) bool {
		if strings.Contains(p, "/") {
			return false
		}
		upper := strings.ToUpper(p)
		for _, prefix := range prefixes {
			if strings.HasPrefix(upper, prefix) {
				return true
			}
		}
		return false
	}
}

func structureSuggestions(all, analyzed []types.FileInfo, m *Metrics) []Suggestion {
	out := []Suggestion{}

	if !hasFile(all, rootFileNamed("README")) {
		out = append(out, Suggestion{Category: "documentation", Message: "Add a README.md that explains what the project does and how to run it"})
	}
	if !hasFile(all, rootFileNamed("LICENSE", "LICENCE", "COPYING")) {
		out = append(out, Suggestion{Category: "documentation", Message: "Add a LICENSE file so others know how they may use the code"})
	}
	if m.CodeFiles > 0 && m.TestFiles == 0 {
		out = append(out, Suggestion{Category: "testing", Message: "No test files were found; add tests next to the code they cover"})
	}
	if !hasFile(all, func(p string) bool { return strings.HasPrefix(p, ".github/workflows/") }) {
		out = append(out, Suggestion{Category: "ci", Message: "Add a GitHub Actions workflow under .github/workflows to build and test every push"})
	}

	var rootFiles []string
	for _, f := range analyzed {
		if !strings.Contains(f.RelativePath, "/") {
			rootFiles = append(rootFiles, f.RelativePath)
		}
	}
	if len(rootFiles) > 15 {
		out = append(out, Suggestion{
			Category: "layout",
			Message:  fmt.Sprintf("%d files live in the repository root; group them into directories", len(rootFiles)),
			Paths:    rootFiles,
		})
	}
	if m.MaxDepth > 8 {
		out = append(out, Suggestion{Category: "layout", Message: fmt.Sprintf("Directory nesting reaches %d levels; consider flattening the tree", m.MaxDepth)})
	}
	return out
}

func cleanupSuggestions(all, analyzed []types.FileInfo, opts Options) []Suggestion {
	out := []Suggestion{}

	artifacts := map[string]bool{}
	var secrets, junk []string
	for _, f := range all {
		for _, part := range strings.Split(path.Dir(f.RelativePath), "/") {
			for _, d := range artifactDirs {
				if part == d {
					artifacts[d] = true
				}
			}
		}
		base := path.Base(f.RelativePath)
		switch {
		case base == ".env" || strings.HasPrefix(base, ".env.") && base != ".env.example":
			secrets = append(secrets, f.RelativePath)
		case base == ".DS_Store" || base == "Thumbs.db" || strings.HasSuffix(base, ".log") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, "~"):
			junk = append(junk, f.RelativePath)
		}
	}

	if len(artifacts) > 0 {
		dirs := make([]string, 0, len(artifacts))
		for d := range artifacts {
			dirs = append(dirs, d+"/")
		}
		sort.Strings(dirs)
		out = append(out, Suggestion{Category: "artifacts", Message: "Build or dependency output is committed; remove it and add it to .gitignore", Paths: dirs})
	}
	if len(secrets) > 0 {
		out = append(out, Suggestion{Category: "secrets", Message: "Environment files are committed; remove them and rotate any secrets they contain", Paths: secrets})
	}
	if len(junk) > 0 {
		out = append(out, Suggestion{Category: "junk", Message: "Remove editor, OS and log files from version control", Paths: junk})
	}

	if opts.LargeFileBytes > 0 {
		var large []string
		for _, f := range all {
			if f.Size > opts.LargeFileBytes {
				large = append(large, f.RelativePath)
			}
		}
		if len(large) > 0 {
			out = append(out, Suggestion{
				Category: "large_files",
				Message:  fmt.Sprintf("%d files exceed %d KB; consider Git LFS or removing them", len(large), opts.LargeFileBytes>>10),
				Paths:    large,
			})
		}
	}

	if !hasFile(all, func(p string) bool { return p == ".gitignore" }) && len(analyzed) > 0 {
		out = append(out, Suggestion{Category: "gitignore", Message: "Add a .gitignore so generated files stay out of the repository"})
	}
	return out
}

func recommendations(r *Report) []string {
	out := []string{}
	for _, s := range r.StructureSuggestions {
		out = append(out, s.Message)
	}
	for _, s := range r.CleanupSuggestions {
		out = append(out, s.Message)
	}
	if dominant := dominantLanguage(r.Metrics.Languages); dominant != "" {
		out = append(out, fmt.Sprintf("Most code is %s; keep linters and formatters for it in CI", dominant))
	}
	return out
}

func dominantLanguage(langs map[string]LanguageStat) string {
	best, bestLines := "", -1
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !codeLanguages[name] {
			continue
		}
		if langs[name].Lines > bestLines {
			best, bestLines = name, langs[name].Lines
		}
	}
	return best
}
