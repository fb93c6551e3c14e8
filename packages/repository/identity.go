package repository

import (
	"net/url"
	"regexp"
	"strings"

	"devflow-autopilot/types"
)

var githubURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+/?$`),
	regexp.MustCompile(`^https://github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+\.git$`),
	regexp.MustCompile(`^git@github\.com:[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+(\.git)?$`),
}

// IsGitHubURL reports whether raw is one of the accepted repository URL shapes.
func IsGitHubURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	for _, re := range githubURLPatterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

// ParseRepoURL extracts the owner and repository name from an HTTPS or SSH
// repository URL. Only the first two path segments are used.
func ParseRepoURL(raw string) (types.RepositoryIdentity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return types.RepositoryIdentity{}, &types.InvalidURLError{URL: raw, Reason: "empty URL"}
	}

	var path string
	if rest, ok := strings.CutPrefix(trimmed, "git@"); ok {
		_, p, found := strings.Cut(rest, ":")
		if !found {
			return types.RepositoryIdentity{}, &types.InvalidURLError{URL: raw, Reason: "missing ':' in SSH URL"}
		}
		path = p
	} else {
		u, err := url.Parse(trimmed)
		if err != nil {
			return types.RepositoryIdentity{}, &types.InvalidURLError{URL: raw, Reason: err.Error()}
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return types.RepositoryIdentity{}, &types.InvalidURLError{URL: raw, Reason: "expected owner and repository in path"}
	}

	owner, name := segments[0], strings.TrimSuffix(segments[1], ".git")
	return types.RepositoryIdentity{
		Owner: owner,
		Name:  name,
		URL:   trimmed,
	}, nil
}

// ResolveRepository validates and parses a repository URL in one step.
func ResolveRepository(raw string) (types.RepositoryIdentity, error) {
	if !IsGitHubURL(raw) {
		return types.RepositoryIdentity{}, &types.InvalidURLError{URL: raw, Reason: "not a GitHub repository URL"}
	}
	return ParseRepoURL(raw)
}

// Identity builds an identity from an owner and name pair.
func Identity(owner, name string) (types.RepositoryIdentity, error) {
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if owner == "" || name == "" || strings.Contains(owner, "/") || strings.Contains(name, "/") {
		return types.RepositoryIdentity{}, &types.ValidationError{Field: "repository", Reason: "repo_owner and repo_name are required"}
	}
	id := types.RepositoryIdentity{Owner: owner, Name: name}
	id.URL = id.HTMLURL()
	return id, nil
}
