package repository

import (
	"regexp"
	"strings"

	"devflow-autopilot/types"
)

var classicTokenPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsValidToken reports whether token has the shape of a GitHub personal
// access token: ghp_ prefixed or a 40 character lowercase hex classic token.
func IsValidToken(token string) bool {
	switch {
	case token == "":
		return false
	case strings.HasPrefix(token, "ghp_"):
		return true
	default:
		return classicTokenPattern.MatchString(token)
	}
}

// CheckToken returns an AuthError for a present but malformed token. A
// missing token is allowed unless required is set.
func CheckToken(token string, required bool) error {
	if token == "" {
		if required {
			return &types.AuthError{Reason: "GITHUB_TOKEN or GH_TOKEN is not set"}
		}
		return nil
	}
	if !IsValidToken(token) {
		return &types.AuthError{Reason: "token does not look like a GitHub personal access token"}
	}
	return nil
}
