package analyzer

import (
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Repomix's default ignore patterns for directories
var defaultIgnoreDirs = []string{
	"node_modules", ".git", ".svn", ".hg",
	"dist", "build", ".next", ".nuxt", "out",
	"coverage", ".nyc_output", ".coverage",
	"__pycache__", ".pytest_cache",
	".vscode", ".idea", ".venv", "venv", "env",
	"target", "bin", "obj", ".gradle", ".mvn",
	".turbo", ".vercel", ".netlify", "vendor",
}

var defaultIgnoreFiles = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb",
	"go.sum", "Pipfile.lock", "poetry.lock", "Gemfile.lock",
	"composer.lock", "mix.lock", "pubspec.lock",
	".env", ".env.local", ".env.production", ".env.development",
	".DS_Store", "Thumbs.db",
}

// File extensions to ignore (binary/media files)
var ignoreExtensions = []string{
	// Images
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp", ".tiff",
	// Videos
	".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm",
	// Audio
	".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma",
	// Documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	// Archives
	".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz",
	// Executables
	".exe", ".dll", ".so", ".dylib", ".app", ".deb", ".rpm",
	// Fonts
	".ttf", ".otf", ".woff", ".woff2", ".eot",
	// Other binary
	".bin", ".dat", ".db", ".sqlite", ".sqlite3",
}

// Hidden files that are still worth analyzing
var allowedHidden = []string{
	".gitignore", ".gitattributes", ".editorconfig",
	".eslintrc", ".prettierrc", ".babelrc",
	".dockerignore", ".env.example", ".nvmrc", ".github",
}

// Rules decides which repository paths take part in the analysis. The
// .gitignore and exclude patterns follow gitignore semantics, negation
// included; later patterns override earlier ones.
type Rules struct {
	matcher gitignore.Matcher
}

// NewRules combines .gitignore content with caller supplied exclude patterns.
func NewRules(gitignoreFile string, exclude []string) *Rules {
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(gitignoreFile, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}
	for _, p := range exclude {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
	}
	return &Rules{matcher: gitignore.NewMatcher(patterns)}
}

// Ignored reports whether the file at relPath is excluded.
func (r *Rules) Ignored(relPath string) bool {
	relPath = strings.TrimPrefix(strings.ReplaceAll(relPath, "\\", "/"), "./")

	if r.matcher.Match(strings.Split(relPath, "/"), false) {
		return true
	}
	if dir := path.Dir(relPath); dir != "." {
		for _, part := range strings.Split(dir, "/") {
			if isDefaultIgnoredDir(part) {
				return true
			}
		}
	}
	return IsDefaultIgnoredFile(path.Base(relPath))
}

func isDefaultIgnoredDir(name string) bool {
	lowerName := strings.ToLower(name)
	for _, pattern := range defaultIgnoreDirs {
		if lowerName == pattern {
			return true
		}
	}
	return false
}

// IsDefaultIgnoredFile applies the built-in lock file, secret, media and
// hidden file rules to a base name.
func IsDefaultIgnoredFile(name string) bool {
	lowerName := strings.ToLower(name)

	// Check exact file names
	for _, pattern := range defaultIgnoreFiles {
		if lowerName == strings.ToLower(pattern) {
			return true
		}
	}

	// Check file extensions
	for _, ext := range ignoreExtensions {
		if strings.HasSuffix(lowerName, ext) {
			return true
		}
	}

	// Additional patterns - be more selective with hidden files
	if strings.HasPrefix(lowerName, ".") && len(name) > 1 {
		for _, allowed := range allowedHidden {
			if strings.HasPrefix(lowerName, allowed) {
				return false
			}
		}
		return true
	}

	return false
}

// ListOnly is used while cloning: paths under default ignored directories
// and default ignored files are listed but never read.
func ListOnly(relPath string) bool {
	for _, part := range strings.Split(path.Dir(relPath), "/") {
		if isDefaultIgnoredDir(part) {
			return true
		}
	}
	return IsDefaultIgnoredFile(path.Base(relPath))
}
