package ai

import (
	"regexp"
	"strconv"
	"strings"
)

// LogPattern is a known failure signature found in deployment logs.
type LogPattern struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Excerpt  string `json:"excerpt"`
}

type patternRule struct {
	name     string
	category string
	severity string
	re       *regexp.Regexp
}

var patternRules = []patternRule{
	{"out_of_memory", "resources", "critical", regexp.MustCompile(`(?i)out of memory|OOMKilled|java\.lang\.OutOfMemoryError|heap out of memory|MemoryError`)},
	{"go_panic", "crash", "critical", regexp.MustCompile(`^panic: |fatal error: `)},
	{"nil_dereference", "crash", "high", regexp.MustCompile(`nil pointer dereference|NullPointerException|Cannot read propert(y|ies) of (undefined|null)|AttributeError: 'NoneType'`)},
	{"unhandled_exception", "crash", "high", regexp.MustCompile(`Traceback \(most recent call last\)|Unhandled(Promise)?Rejection|uncaught exception|Exception in thread`)},
	{"missing_module", "dependency", "high", regexp.MustCompile(`ModuleNotFoundError|ImportError|Cannot find module|no required module provides package|ClassNotFoundException`)},
	{"syntax_error", "build", "high", regexp.MustCompile(`SyntaxError|syntax error|unexpected token`)},
	{"compile_error", "build", "high", regexp.MustCompile(`(?i)compilation failed|build failed|error TS\d+|undefined: \w+`)},
	{"missing_configuration", "configuration", "high", regexp.MustCompile(`(?i)KeyError|environment variable .* (not set|missing|required)|missing required (config|setting|env)`)},
	{"connection_refused", "network", "high", regexp.MustCompile(`(?i)connection refused|ECONNREFUSED`)},
	{"dns_failure", "network", "medium", regexp.MustCompile(`(?i)no such host|ENOTFOUND|name or service not known|temporary failure in name resolution`)},
	{"timeout", "network", "medium", regexp.MustCompile(`(?i)timed? ?out|deadline exceeded|ETIMEDOUT`)},
	{"tls_failure", "network", "medium", regexp.MustCompile(`(?i)x509:|certificate (verify failed|has expired|signed by unknown)`)},
	{"port_in_use", "runtime", "medium", regexp.MustCompile(`(?i)address already in use|EADDRINUSE`)},
	{"permission_denied", "runtime", "medium", regexp.MustCompile(`(?i)permission denied|EACCES|access denied`)},
	{"database_error", "database", "high", regexp.MustCompile(`(?i)relation "?\w+"? does not exist|no such table|migration (failed|error)|deadlock detected|too many connections`)},
	{"http_5xx", "runtime", "medium", regexp.MustCompile(`\b(HTTP/\d(\.\d)? |status[=: ]+)5\d\d\b`)},
	{"crash_loop", "runtime", "critical", regexp.MustCompile(`CrashLoopBackOff|Back-off restarting failed container`)},
	{"non_zero_exit", "runtime", "medium", regexp.MustCompile(`(?i)exit(ed)? (with )?(code|status) [1-9]\d*`)},
	{"disk_full", "resources", "high", regexp.MustCompile(`(?i)no space left on device|ENOSPC|disk quota exceeded`)},
}

const maxExcerpt = 200

// DetectPatterns scans logs line by line and reports the first occurrence of
// every known failure signature.
func DetectPatterns(source, logs string) []LogPattern {
	var out []LogPattern
	seen := map[string]bool{}
	for i, line := range strings.Split(logs, "\n") {
		for _, rule := range patternRules {
			if seen[rule.name] || !rule.re.MatchString(line) {
				continue
			}
			seen[rule.name] = true
			excerpt := strings.TrimSpace(line)
			if len(excerpt) > maxExcerpt {
				excerpt = truncateUTF8(excerpt, maxExcerpt)
			}
			out = append(out, LogPattern{
				Name:     rule.name,
				Category: rule.category,
				Severity: rule.severity,
				Source:   source,
				Line:     i + 1,
				Excerpt:  excerpt,
			})
		}
	}
	return out
}

// StackFrame is a file:line reference found in a log.
type StackFrame struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Python, JVM and Node frames, then a generic path:line form.
var frameRules = []*regexp.Regexp{
	regexp.MustCompile(`File "([^"]+)", line (\d+)`),
	regexp.MustCompile(`\(([\w$.]+\.(?:java|kt|scala)):(\d+)\)`),
	regexp.MustCompile(`\(?((?:[\w.@-]+/)*[\w.@-]+\.[cm]?[jt]sx?):(\d+):\d+\)?`),
	regexp.MustCompile(`((?:[\w.-]+/)*[\w.-]+\.(?:go|rb|rs|php|py|c|cc|cpp|h|cs)):(\d+)`),
}

// ExtractFrames returns the distinct file:line references in logs, grouped by
// frame syntax.
func ExtractFrames(logs string) []StackFrame {
	var out []StackFrame
	seen := map[StackFrame]bool{}
	for _, re := range frameRules {
		for _, m := range re.FindAllStringSubmatch(logs, -1) {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			f := StackFrame{File: m[1], Line: n}
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
