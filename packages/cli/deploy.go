package cli

import (
	"errors"
	"fmt"
	"os"

	"devflow-autopilot/packages/ai"

	"github.com/spf13/cobra"
)

func newDeployAnalyzeCmd(a *app) *cobra.Command {
	var diffPath, logsPath, pipelinePath, env string
	cmd := &cobra.Command{
		Use:   "deploy-analyze",
		Short: "Diagnose a failed deployment from its diff and logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if diffPath == "" && logsPath == "" {
				return errors.New("--diff or --logs is required")
			}
			f := ai.DeployFailure{DeploymentEnv: env}
			for _, in := range []struct {
				path string
				dst  *string
			}{{diffPath, &f.GitDiff}, {logsPath, &f.RuntimeLogs}, {pipelinePath, &f.PipelineLogs}} {
				if in.path == "" {
					continue
				}
				data, err := os.ReadFile(in.path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", in.path, err)
				}
				*in.dst = string(data)
			}

			b, err := a.connect(cmd)
			if err != nil {
				return err
			}
			report, err := b.PostDeployAnalysis(cmd.Context(), f)
			if report == nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.emit(out, report) {
				return err
			}

			if len(report.DetectedPatterns) > 0 {
				bold.Fprintln(out, "Detected patterns")
				for _, p := range report.DetectedPatterns {
					fmt.Fprintf(out, "  %-8s %-22s %s:%d  %s\n", p.Severity, p.Name, p.Source, p.Line, p.Excerpt)
				}
				fmt.Fprintln(out)
			}
			if report.AffectedFile != "" {
				fmt.Fprintf(out, "Suspect: %s", report.AffectedFile)
				if report.AffectedLine > 0 {
					fmt.Fprintf(out, ":%d", report.AffectedLine)
				}
				fmt.Fprintln(out)
			}
			if err != nil {
				return fmt.Errorf("root cause analysis failed: %w", err)
			}

			bold.Fprintln(out, "\nRoot cause")
			fmt.Fprintf(out, "%s\n\n%s\n", report.Summary, report.RootCause)
			if report.Impact != "" {
				fmt.Fprintf(out, "\nImpact: %s\n", report.Impact)
			}
			if report.SuggestedFix != "" {
				bold.Fprintln(out, "\nSuggested fix")
				fmt.Fprintln(out, report.SuggestedFix)
			}
			fmt.Fprintf(out, "\nConfidence: %.0f%%\n", report.Confidence*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&diffPath, "diff", "", "File with the unified diff of the deployment")
	cmd.Flags().StringVar(&logsPath, "logs", "", "File with the runtime logs")
	cmd.Flags().StringVar(&pipelinePath, "pipeline-logs", "", "File with the CI/CD pipeline logs")
	cmd.Flags().StringVar(&env, "env", "", "Deployment environment name")
	return cmd
}
