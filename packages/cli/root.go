// Package cli implements the devflow command line.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Backend is what the commands call into.
type Backend interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*service.AnalyzeResponse, error)
	PostDeployAnalysis(ctx context.Context, f ai.DeployFailure) (*ai.RootCauseReport, error)
	Candidates(ctx context.Context, req rollback.CandidatesRequest) ([]types.RollbackCandidate, error)
	SafetyCheck(ctx context.Context, req rollback.SafetyRequest) (types.SafetyAssessment, error)
	ExecuteRollback(ctx context.Context, req rollback.ExecuteRequest) types.RollbackResult
	SEO(ctx context.Context, req service.SEORequest) (*service.SEOResult, error)
	CheckPush(ctx context.Context, req service.PushCheckRequest) types.PushCheck
	LatestCommit(ctx context.Context, repoURL string) *types.Commit
}

// Factory builds the backend once a command knows it needs one. The returned
// func releases it.
type Factory func(ctx context.Context) (Backend, func(), error)

type app struct {
	factory Factory
	backend Backend
	cleanup func()
	asJSON  bool
}

func (a *app) connect(cmd *cobra.Command) (Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	b, cleanup, err := a.factory(cmd.Context())
	if err != nil {
		return nil, err
	}
	a.backend, a.cleanup = b, cleanup
	return b, nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// emit prints v as JSON when --json is set and returns true.
func (a *app) emit(w io.Writer, v any) bool {
	if !a.asJSON {
		return false
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return true
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "devflow",
		Short: "AI assisted GitHub repository automation",
		Long: `devflow generates SEO metadata for GitHub repositories, tracks pushes,
analyzes repository structure, diagnoses failed deployments and opens
rollback pull requests with a safety check.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(
		newSEOCmd(a),
		newLatestCommitCmd(a),
		newCheckPushCmd(a),
		newAnalyzeCmd(a),
		newRollbackCmd(a),
		newDeployAnalyzeCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, factory Factory, args []string, stdout, stderr io.Writer) int {
	a := &app{factory: factory}
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func riskColor(level types.RiskLevel) *color.Color {
	switch level {
	case types.RiskLow:
		return green
	case types.RiskMedium:
		return yellow
	default:
		return red
	}
}
