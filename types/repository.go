package types

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryIdentity is the owner/name pair resolved from a repository URL.
type RepositoryIdentity struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
}

func (r RepositoryIdentity) FullName() string {
	return r.Owner + "/" + r.Name
}

// Key is the case-insensitive identity used for state and locking.
func (r RepositoryIdentity) Key() string {
	return strings.ToLower(r.FullName())
}

func (r RepositoryIdentity) HTMLURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.Owner, r.Name)
}

type Commit struct {
	SHA     string    `json:"sha"`
	Author  string    `json:"author"`
	Email   string    `json:"email,omitempty"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
	TreeSHA string    `json:"tree_sha,omitempty"`
}

// ShortSHA returns the first seven characters of the commit SHA.
func (c Commit) ShortSHA() string { return ShortSHA(c.SHA) }

// ShortSHA abbreviates sha to seven characters.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// Subject is the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// RollbackCandidate is a commit offered as a rollback target. RollbackNumber
// is 1-based with 1 being the newest commit on the branch.
type RollbackCandidate struct {
	Commit
	RollbackNumber int `json:"rollback_number"`
}

type FileInfo struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	Content      []byte `json:"-"`
	Language     string `json:"language,omitempty"`
	Binary       bool   `json:"binary,omitempty"`
}

// RepositoryInfo is the subset of repository metadata the services use.
type RepositoryInfo struct {
	Owner         string         `json:"owner"`
	Name          string         `json:"name"`
	FullName      string         `json:"full_name"`
	Description   string         `json:"description"`
	Homepage      string         `json:"homepage,omitempty"`
	DefaultBranch string         `json:"default_branch"`
	Language      string         `json:"language,omitempty"`
	Languages     map[string]int `json:"languages,omitempty"`
	Topics        []string       `json:"topics,omitempty"`
	License       string         `json:"license,omitempty"`
	Stars         int            `json:"stars"`
	Forks         int            `json:"forks"`
	OpenIssues    int            `json:"open_issues"`
	SizeKB        int            `json:"size_kb"`
	Private       bool           `json:"private"`
	Archived      bool           `json:"archived"`
	HTMLURL       string         `json:"html_url"`
	CreatedAt     time.Time      `json:"created_at"`
	PushedAt      time.Time      `json:"pushed_at"`
}

// FileChange is one file of a commit comparison.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"-"`
}

// Comparison is the result of comparing two commits. Status is one of
// ahead, behind, identical or diverged from the base's point of view.
type Comparison struct {
	Status       string       `json:"status"`
	AheadBy      int          `json:"ahead_by"`
	BehindBy     int          `json:"behind_by"`
	TotalCommits int          `json:"total_commits"`
	Files        []FileChange `json:"files"`
	HTMLURL      string       `json:"html_url,omitempty"`
}
