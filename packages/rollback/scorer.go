package rollback

import (
	"fmt"
	"path"
	"strings"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/types"
)

// compareFileCap is the number of files GitHub returns from the compare API
// before it silently truncates the list.
const compareFileCap = 300

// DiffShape describes what rolling HEAD back to a candidate would change.
// Additions and deletions are from the point of view of the rollback: lines
// added after the candidate are deleted by the rollback.
type DiffShape struct {
	FilesChanged    int
	Additions       int
	Deletions       int
	CommitsReverted int
	// Restored files were deleted after the candidate; Dropped files were
	// added after it.
	Restored     []string
	Dropped      []string
	Migrations   []string
	ConfigFiles  []string
	Dependencies []string
	CIFiles      []string
	Truncated    bool
	Diverged     bool
}

// Lines is the total number of changed lines.
func (d DiffShape) Lines() int { return d.Additions + d.Deletions }

// ShapeOf derives the rollback shape from the comparison of candidate...HEAD.
func ShapeOf(cmp *types.Comparison, cfg config.ScoringConfig) DiffShape {
	shape := DiffShape{
		FilesChanged:    len(cmp.Files),
		CommitsReverted: cmp.AheadBy,
		Truncated:       len(cmp.Files) >= compareFileCap,
		Diverged:        cmp.Status == "diverged" || cmp.Status == "behind",
	}
	migrations := globMatcher(cfg.MigrationGlobs)
	ci := globMatcher(cfg.CIGlobs)
	configs := globMatcher(cfg.ConfigGlobs)
	for _, f := range cmp.Files {
		shape.Additions += f.Deletions
		shape.Deletions += f.Additions

		switch f.Status {
		case "added":
			shape.Dropped = append(shape.Dropped, f.Filename)
		case "removed":
			shape.Restored = append(shape.Restored, f.Filename)
		}

		base := path.Base(f.Filename)
		switch {
		case matches(migrations, f.Filename):
			shape.Migrations = append(shape.Migrations, f.Filename)
		case contains(cfg.DependencyFiles, base):
			shape.Dependencies = append(shape.Dependencies, f.Filename)
		case matches(ci, f.Filename):
			shape.CIFiles = append(shape.CIFiles, f.Filename)
		case matches(configs, f.Filename):
			shape.ConfigFiles = append(shape.ConfigFiles, f.Filename)
		}
	}
	return shape
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Scorer turns a diff shape into a risk level and warnings.
type Scorer interface {
	Score(shape DiffShape) (types.RiskLevel, []string)
}

// RuleScorer grades a rollback by size thresholds and by the kinds of files
// it touches.
type RuleScorer struct {
	cfg config.ScoringConfig
}

func NewRuleScorer(cfg config.ScoringConfig) *RuleScorer {
	return &RuleScorer{cfg: cfg}
}

func (s *RuleScorer) Score(shape DiffShape) (types.RiskLevel, []string) {
	risk := types.RiskLow
	var warnings []string
	raise := func(level types.RiskLevel, format string, args ...any) {
		risk = risk.Max(level)
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if shape.FilesChanged == 0 {
		return types.RiskLow, []string{"Candidate matches HEAD, nothing would change"}
	}

	switch {
	case shape.Truncated:
		raise(types.RiskHigh, "Diff lists at least %d files and was truncated by GitHub", compareFileCap)
	case shape.FilesChanged >= s.cfg.HighFiles:
		raise(types.RiskHigh, "Rollback touches %d files", shape.FilesChanged)
	case shape.FilesChanged >= s.cfg.MediumFiles:
		raise(types.RiskMedium, "Rollback touches %d files", shape.FilesChanged)
	}

	switch lines := shape.Lines(); {
	case lines >= s.cfg.HighLines:
		raise(types.RiskHigh, "Rollback changes %d lines", lines)
	case lines >= s.cfg.MediumLines:
		raise(types.RiskMedium, "Rollback changes %d lines", lines)
	}

	switch n := shape.CommitsReverted; {
	case n >= s.cfg.HighCommits:
		raise(types.RiskHigh, "Rollback reverts %d commits", n)
	case n >= s.cfg.MediumCommits:
		raise(types.RiskMedium, "Rollback reverts %d commits", n)
	}

	if shape.Diverged {
		raise(types.RiskHigh, "Candidate is not an ancestor of HEAD, history was rewritten")
	}
	if len(shape.Migrations) > 0 {
		raise(types.RiskHigh, "Database migrations change: %s", list(shape.Migrations))
	}
	if len(shape.Dependencies) > 0 {
		raise(types.RiskMedium, "Dependency manifests change: %s", list(shape.Dependencies))
	}
	if len(shape.ConfigFiles) > 0 {
		raise(types.RiskMedium, "Configuration or infrastructure files change: %s", list(shape.ConfigFiles))
	}
	if len(shape.CIFiles) > 0 {
		raise(types.RiskMedium, "CI pipeline definitions change: %s", list(shape.CIFiles))
	}
	if len(shape.Dropped) > 0 {
		raise(types.RiskLow, "%d files added since the candidate will be deleted", len(shape.Dropped))
	}
	if len(shape.Restored) > 0 {
		raise(types.RiskLow, "%d files deleted since the candidate will be restored", len(shape.Restored))
	}
	return risk, warnings
}

func list(files []string) string {
	const shown = 5
	if len(files) <= shown {
		return strings.Join(files, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(files[:shown], ", "), len(files)-shown)
}

// Recommend returns the advice shown next to a risk level.
func Recommend(risk types.RiskLevel) string {
	switch risk {
	case types.RiskLow:
		return "Safe to roll back. Review the pull request and merge when ready."
	case types.RiskMedium:
		return "Review the warnings and test the rollback branch before merging."
	case types.RiskHigh:
		return "High risk rollback. Check migrations and data compatibility and test in staging first."
	default:
		return "Risk could not be assessed. Inspect the diff manually before rolling back."
	}
}
