package rollback

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// globMatcher matches repository paths against gitignore style globs: "**"
// spans any number of directories and a pattern without a slash matches any
// path component.
func globMatcher(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, gitignore.ParsePattern(p, nil))
		}
	}
	return gitignore.NewMatcher(ps)
}

func matchGlob(pattern, name string) bool {
	return matches(globMatcher([]string{pattern}), name)
}

func matches(m gitignore.Matcher, name string) bool {
	return m.Match(strings.Split(name, "/"), false)
}
