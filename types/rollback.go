package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

var riskOrder = map[RiskLevel]int{
	RiskLow:     0,
	RiskMedium:  1,
	RiskHigh:    2,
	RiskUnknown: 3,
}

// ParseRiskLevel accepts any casing of the four known levels.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := riskOrder[level]; !ok {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return level, nil
}

// AtLeast reports whether r is as severe as other. UNKNOWN outranks HIGH.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskOrder[r] >= riskOrder[other]
}

// Max returns the more severe of the two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.AtLeast(r) {
		return other
	}
	return r
}

func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// SafetyAssessment is the outcome of a rollback safety check.
type SafetyAssessment struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	Warnings        []string  `json:"warnings"`
	Recommendation  string    `json:"recommendation"`
	RollbackNumber  int       `json:"rollback_number"`
	TargetSHA       string    `json:"target_sha,omitempty"`
	HeadSHA         string    `json:"head_sha,omitempty"`
	FilesChanged    int       `json:"files_changed"`
	Additions       int       `json:"additions"`
	Deletions       int       `json:"deletions"`
	CommitsReverted int       `json:"commits_reverted"`
	AssessedAt      time.Time `json:"assessed_at"`
}

type PullRequestRef struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Branch string `json:"branch"`
}

// RollbackResult reports the outcome of a rollback execution. When the pull
// request could not be opened, ManualPRLink points to the compare view for the
// pushed branch.
type RollbackResult struct {
	Success      bool            `json:"success"`
	PullRequest  *PullRequestRef `json:"pull_request,omitempty"`
	ManualPRLink string          `json:"manual_pr_link,omitempty"`
	Message      string          `json:"message,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
}
