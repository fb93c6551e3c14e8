package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/waigani/diffparser"
)

const (
	maxPromptDiff = 12000
	maxPromptLogs = 8000
)

// DeployFailure is the evidence collected after a failed deployment.
type DeployFailure struct {
	GitDiff       string `json:"git_diff"`
	RuntimeLogs   string `json:"runtime_logs"`
	PipelineLogs  string `json:"pipeline_logs,omitempty"`
	DeploymentEnv string `json:"deployment_env,omitempty"`
}

type RootCauseReport struct {
	Success          bool         `json:"success"`
	Summary          string       `json:"summary"`
	RootCause        string       `json:"root_cause"`
	AffectedFile     string       `json:"affected_file"`
	AffectedLine     int          `json:"affected_line"`
	Impact           string       `json:"impact"`
	Confidence       float64      `json:"confidence"`
	SuggestedFix     string       `json:"suggested_fix"`
	DetectedPatterns []LogPattern `json:"detected_patterns"`
	ChangedFiles     []string     `json:"changed_files,omitempty"`
	Error            string       `json:"error,omitempty"`
	ErrorKind        string       `json:"error_kind,omitempty"`
}

type rootCauseResponse struct {
	Summary      string          `json:"summary" jsonschema:"required" jsonschema_description:"Two sentence summary of the failure"`
	RootCause    string          `json:"root_cause" jsonschema:"required" jsonschema_description:"The most likely root cause"`
	AffectedFile string          `json:"affected_file" jsonschema_description:"Repository relative path of the file at fault"`
	AffectedLine json.RawMessage `json:"affected_line" jsonschema:"type=integer" jsonschema_description:"Line number in affected_file, 0 when unknown"`
	Impact       string          `json:"impact" jsonschema_description:"What is broken for users"`
	Confidence   json.RawMessage `json:"confidence" jsonschema:"type=number" jsonschema_description:"Confidence between 0 and 1"`
	SuggestedFix string          `json:"suggested_fix" jsonschema_description:"Concrete change that fixes the failure"`
}

// ChangedFile summarizes one file of a unified diff.
type ChangedFile struct {
	Path       string
	Status     string
	AddedLines []int
	Removed    int
}

type RootCauseAnalyzer struct {
	gen Generator
}

func NewRootCauseAnalyzer(g Generator) *RootCauseAnalyzer {
	return &RootCauseAnalyzer{gen: g}
}

// Analyze correlates the diff with the logs and asks the model for a root
// cause. When the model call fails the returned report still carries the rule
// based findings, with Success false, alongside the error.
func (a *RootCauseAnalyzer) Analyze(ctx context.Context, f DeployFailure) (*RootCauseReport, error) {
	if strings.TrimSpace(f.GitDiff) == "" && strings.TrimSpace(f.RuntimeLogs) == "" {
		return nil, &types.ValidationError{Field: "runtime_logs", Reason: "git_diff or runtime_logs is required"}
	}
	log := clog.FromContext(ctx)

	changed, err := ParseDiff(f.GitDiff)
	if err != nil {
		log.Warnf("Failed to parse git diff, continuing with logs only: %v", err)
	}

	patterns := DetectPatterns("runtime", f.RuntimeLogs)
	patterns = append(patterns, DetectPatterns("pipeline", f.PipelineLogs)...)
	if patterns == nil {
		patterns = []LogPattern{}
	}
	frames := ExtractFrames(f.RuntimeLogs + "\n" + f.PipelineLogs)
	suspect, line := Correlate(changed, frames)

	report := &RootCauseReport{
		AffectedFile:     suspect,
		AffectedLine:     line,
		DetectedPatterns: patterns,
	}
	for _, c := range changed {
		report.ChangedFiles = append(report.ChangedFiles, c.Path)
	}
	log.With("patterns", len(patterns), "changed_files", len(changed), "suspect", suspect).Info("Collected deployment evidence")

	if a.gen == nil {
		return failReport(report, &types.ServiceUnavailableError{Service: "llm", Err: errors.New("no LLM provider configured")})
	}

	resp, err := GenerateJSON[rootCauseResponse](ctx, a.gen, Prompt{
		System: "You are a senior site reliability engineer diagnosing failed deployments. Be specific and only cite evidence present in the input.",
		User:   buildRootCausePrompt(f, patterns, frames, suspect, line),
	})
	if err != nil {
		return failReport(report, err)
	}
	if strings.TrimSpace(resp.RootCause) == "" {
		return failReport(report, &types.ParseError{What: "root cause response", Err: errors.New("missing root_cause")})
	}

	report.Success = true
	report.Summary = strings.TrimSpace(resp.Summary)
	report.RootCause = strings.TrimSpace(resp.RootCause)
	report.Impact = strings.TrimSpace(resp.Impact)
	report.SuggestedFix = strings.TrimSpace(resp.SuggestedFix)
	report.Confidence = parseConfidence(resp.Confidence)
	if file := strings.TrimSpace(resp.AffectedFile); file != "" {
		report.AffectedFile = file
		report.AffectedLine = 0
	}
	if n := parseLine(resp.AffectedLine); n > 0 {
		report.AffectedLine = n
	}
	return report, nil
}

func failReport(r *RootCauseReport, err error) (*RootCauseReport, error) {
	r.Success = false
	r.Error = err.Error()
	r.ErrorKind = types.ErrorKind(err)
	return r, err
}

// ParseDiff lists the files of a unified diff with their added line numbers.
func ParseDiff(raw string) ([]ChangedFile, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	diff, err := diffparser.Parse(raw)
	if err != nil {
		return nil, &types.ParseError{What: "git diff", Err: err}
	}

	out := make([]ChangedFile, 0, len(diff.Files))
	for _, file := range diff.Files {
		c := ChangedFile{Path: cleanDiffPath(file.NewName)}
		switch file.Mode {
		case diffparser.NEW:
			c.Status = "added"
		case diffparser.DELETED:
			c.Status = "deleted"
			c.Path = cleanDiffPath(file.OrigName)
		default:
			c.Status = "modified"
		}
		if c.Path == "" {
			continue
		}
		for _, hunk := range file.Hunks {
			for _, l := range hunk.NewRange.Lines {
				if l.Mode == diffparser.ADDED {
					c.AddedLines = append(c.AddedLines, l.Number)
				}
			}
			for _, l := range hunk.OrigRange.Lines {
				if l.Mode == diffparser.REMOVED {
					c.Removed++
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func cleanDiffPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "/dev/null" {
		return ""
	}
	p = strings.TrimPrefix(strings.TrimPrefix(p, "a/"), "b/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Correlate picks the changed file most likely at fault: a stack frame that
// lands on an added line wins over one near an added line, which wins over a
// frame anywhere in a changed file. With no matching frame and exactly one
// changed file, that file is returned.
func Correlate(changed []ChangedFile, frames []StackFrame) (string, int) {
	best, bestScore, bestLine := "", 0, 0
	for _, fr := range frames {
		for _, c := range changed {
			if !samePath(fr.File, c.Path) {
				continue
			}
			score := 1
			for _, n := range c.AddedLines {
				if n == fr.Line {
					score = 3
					break
				}
				if abs(n-fr.Line) <= 5 {
					score = 2
				}
			}
			if score > bestScore {
				best, bestScore, bestLine = c.Path, score, fr.Line
			}
		}
	}
	if best == "" && len(changed) == 1 {
		c := changed[0]
		if len(c.AddedLines) > 0 {
			return c.Path, c.AddedLines[0]
		}
		return c.Path, 0
	}
	return best, bestLine
}

func samePath(frame, changed string) bool {
	frame = strings.TrimPrefix(path.Clean("/"+frame), "/")
	return frame == changed ||
		strings.HasSuffix(frame, "/"+changed) ||
		strings.HasSuffix(changed, "/"+frame)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func parseLine(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseConfidence accepts a fraction, a percentage, or a low/medium/high
// label and returns a value in [0, 1].
func parseConfidence(raw json.RawMessage) float64 {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	switch s {
	case "high":
		return 0.8
	case "medium":
		return 0.5
	case "low":
		return 0.2
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0
	}
	if v > 1 || strings.HasSuffix(s, "%") {
		v /= 100
	}
	return min(max(v, 0), 1)
}

func buildRootCausePrompt(f DeployFailure, patterns []LogPattern, frames []StackFrame, suspect string, line int) string {
	env := f.DeploymentEnv
	if env == "" {
		env = "unspecified"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "A deployment to the %s environment failed. Find the root cause.\n\n", env)

	sb.WriteString("# Detected log patterns\n")
	if len(patterns) == 0 {
		sb.WriteString("none\n")
	}
	for _, p := range patterns {
		fmt.Fprintf(&sb, "- %s (%s, %s log line %d): %s\n", p.Name, p.Severity, p.Source, p.Line, p.Excerpt)
	}

	if len(frames) > 0 {
		sb.WriteString("\n# Stack frames\n")
		for i, fr := range frames {
			if i == 20 {
				break
			}
			fmt.Fprintf(&sb, "- %s:%d\n", fr.File, fr.Line)
		}
	}
	if suspect != "" {
		fmt.Fprintf(&sb, "\nA stack frame points into a changed file: %s:%d\n", suspect, line)
	}

	fmt.Fprintf(&sb, "\n# Git diff\n```diff\n%s\n```\n", head(f.GitDiff, maxPromptDiff))
	fmt.Fprintf(&sb, "\n# Runtime logs\n```\n%s\n```\n", tail(f.RuntimeLogs, maxPromptLogs))
	if f.PipelineLogs != "" {
		fmt.Fprintf(&sb, "\n# Pipeline logs\n```\n%s\n```\n", tail(f.PipelineLogs, maxPromptLogs))
	}

	fmt.Fprintf(&sb, "\n# Output\nReturn one JSON object that matches this schema:\n%s\n", SchemaFor[rootCauseResponse]())
	return sb.String()
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return truncateUTF8(s, n) + "\n[truncated]"
}

// tail keeps the end of s, where failures are usually logged.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	if i := strings.IndexByte(s[cut:], '\n'); i >= 0 {
		cut += i + 1
	}
	return "[truncated]\n" + s[cut:]
}
