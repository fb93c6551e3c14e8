package analyzer

import (
	"path"
	"strings"
)

var languageMap = map[string]string{
	".go":         "go",
	".js":         "javascript",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".py":         "python",
	".java":       "java",
	".cpp":        "cpp",
	".cc":         "cpp",
	".cxx":        "cpp",
	".c":          "c",
	".h":          "c",
	".cs":         "csharp",
	".html":       "html",
	".htm":        "html",
	".css":        "css",
	".scss":       "scss",
	".sass":       "sass",
	".less":       "less",
	".json":       "json",
	".xml":        "xml",
	".yaml":       "yaml",
	".yml":        "yaml",
	".md":         "markdown",
	".markdown":   "markdown",
	".sh":         "bash",
	".bash":       "bash",
	".zsh":        "zsh",
	".sql":        "sql",
	".rb":         "ruby",
	".php":        "php",
	".rs":         "rust",
	".kt":         "kotlin",
	".swift":      "swift",
	".dart":       "dart",
	".vue":        "vue",
	".svelte":     "svelte",
	".r":          "r",
	".scala":      "scala",
	".clj":        "clojure",
	".hs":         "haskell",
	".ex":         "elixir",
	".exs":        "elixir",
	".lua":        "lua",
	".toml":       "toml",
	".ini":        "ini",
	".cfg":        "ini",
	".tf":         "terraform",
	".dockerfile": "dockerfile",
}

// Languages that count as source code rather than markup, data or config.
var codeLanguages = map[string]bool{
	"go": true, "javascript": true, "typescript": true, "python": true, "java": true,
	"cpp": true, "c": true, "csharp": true, "ruby": true, "php": true, "rust": true,
	"kotlin": true, "swift": true, "dart": true, "vue": true, "svelte": true, "scala": true,
	"clojure": true, "haskell": true, "elixir": true, "lua": true, "bash": true, "zsh": true,
}

// LanguageOf maps a file path to a language name, or "" when unknown.
func LanguageOf(relPath string) string {
	base := path.Base(relPath)
	if strings.EqualFold(base, "Dockerfile") {
		return "dockerfile"
	}
	if strings.EqualFold(base, "Makefile") {
		return "make"
	}
	return languageMap[strings.ToLower(path.Ext(base))]
}

// isBinary checks the first 8KB for NUL bytes and a high share of control
// characters.
func isBinary(content []byte) bool {
	checkSize := min(len(content), 8192)
	if checkSize == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range content[:checkSize] {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(checkSize) > 0.30
}
