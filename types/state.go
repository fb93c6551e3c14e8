package types

import "time"

// Processing flags recorded on a repository.
const (
	FlagSEOOptimized = "seo_optimized"
)

// RepositoryState is the last observed state of a tracked repository.
// LastCommitSHA only ever moves forward along the tracked branch.
type RepositoryState struct {
	Owner         string          `json:"owner"`
	Name          string          `json:"name"`
	Branch        string          `json:"branch,omitempty"`
	LastCommitSHA string          `json:"last_commit_sha"`
	LastPushAt    time.Time       `json:"last_push_at,omitempty"`
	Flags         map[string]bool `json:"flags,omitempty"`
	FlagsSHA      string          `json:"flags_sha,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s *RepositoryState) Identity() RepositoryIdentity {
	return RepositoryIdentity{Owner: s.Owner, Name: s.Name}
}

func (s *RepositoryState) Flag(name string) bool {
	return s.Flags != nil && s.Flags[name]
}

func (s *RepositoryState) SetFlag(name string, v bool) {
	if s.Flags == nil {
		s.Flags = map[string]bool{}
	}
	s.Flags[name] = v
}

// EventPayload is a push notification normalized from a webhook or poll.
type EventPayload struct {
	Event    string    `json:"event"`
	Owner    string    `json:"owner"`
	Name     string    `json:"name"`
	Ref      string    `json:"ref"`
	HeadSHA  string    `json:"head_sha"`
	PushedAt time.Time `json:"pushed_at"`
	Sender   string    `json:"sender,omitempty"`
}

type PushCheck struct {
	HasNewPush  bool    `json:"has_new_push"`
	Latest      *Commit `json:"latest,omitempty"`
	PreviousSHA string  `json:"previous_sha,omitempty"`
	Error       string  `json:"error,omitempty"`
}
