package cli

import (
	"errors"
	"fmt"
	"strconv"

	"devflow-autopilot/packages/repository"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/types"

	"github.com/spf13/cobra"
)

type rollbackFlags struct {
	branch string
	limit  int
	number int
	force  bool
}

func newRollbackCmd(a *app) *cobra.Command {
	var f rollbackFlags
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "List, check and execute rollbacks",
	}
	cmd.PersistentFlags().StringVar(&f.branch, "branch", "", "Branch to roll back (default: configured default branch)")

	candidates := &cobra.Command{
		Use:   "candidates <github-url>",
		Short: "List rollback candidates, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, id, err := a.rollbackTarget(cmd, args[0])
			if err != nil {
				return err
			}
			list, err := b.Candidates(cmd.Context(), rollback.CandidatesRequest{Owner: id.Owner, Name: id.Name, Branch: f.branch, Limit: f.limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.emit(out, list) {
				return nil
			}
			table := newTable(out, "#", "SHA", "Author", "Date", "Message")
			for _, c := range list {
				_ = table.Append([]string{
					strconv.Itoa(c.RollbackNumber),
					c.ShortSHA(),
					c.Author,
					c.Date.Format("2006-01-02 15:04"),
					c.Subject(),
				})
			}
			return table.Render()
		},
	}
	candidates.Flags().IntVar(&f.limit, "limit", 0, "Number of candidates (default from configuration)")

	check := &cobra.Command{
		Use:   "check <github-url>",
		Short: "Assess the risk of rolling back to a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, id, err := a.rollbackTarget(cmd, args[0])
			if err != nil {
				return err
			}
			assessment, err := b.SafetyCheck(cmd.Context(), rollback.SafetyRequest{Owner: id.Owner, Name: id.Name, Branch: f.branch, RollbackNumber: f.number})
			if err != nil {
				return err
			}
			if a.emit(cmd.OutOrStdout(), assessment) {
				return nil
			}
			printAssessment(cmd, assessment)
			return nil
		},
	}

	execute := &cobra.Command{
		Use:   "execute <github-url>",
		Short: "Open a pull request that rolls the branch back to a candidate",
		Long: `Run the safety check for the candidate and open a pull request whose single
commit restores the candidate's tree on top of the branch head. --force skips
the safety check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, id, err := a.rollbackTarget(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !f.force {
				assessment, err := b.SafetyCheck(cmd.Context(), rollback.SafetyRequest{Owner: id.Owner, Name: id.Name, Branch: f.branch, RollbackNumber: f.number})
				if err != nil {
					return fmt.Errorf("safety check failed: %w", err)
				}
				if !a.asJSON {
					printAssessment(cmd, assessment)
					fmt.Fprintln(out)
				}
			}

			res := b.ExecuteRollback(cmd.Context(), rollback.ExecuteRequest{
				Owner: id.Owner, Name: id.Name, Branch: f.branch, RollbackNumber: f.number, Force: f.force,
			})
			if a.emit(out, res) {
				if !res.Success {
					return errors.New(res.Message)
				}
				return nil
			}
			if !res.Success {
				return errors.New(res.Message)
			}
			if res.PullRequest != nil {
				green.Fprintf(out, "Opened rollback pull request #%d: %s\n", res.PullRequest.Number, res.PullRequest.URL)
				return nil
			}
			yellow.Fprintln(out, res.Message)
			return nil
		},
	}
	execute.Flags().BoolVar(&f.force, "force", false, "Skip the safety check")

	for _, c := range []*cobra.Command{check, execute} {
		c.Flags().IntVarP(&f.number, "number", "n", 0, "Rollback number from the candidate list")
		_ = c.MarkFlagRequired("number")
	}
	cmd.AddCommand(candidates, check, execute)
	return cmd
}

func (a *app) rollbackTarget(cmd *cobra.Command, url string) (Backend, types.RepositoryIdentity, error) {
	id, err := repository.ResolveRepository(url)
	if err != nil {
		return nil, id, err
	}
	b, err := a.connect(cmd)
	return b, id, err
}

func printAssessment(cmd *cobra.Command, s types.SafetyAssessment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rollback #%d to %s\n", s.RollbackNumber, types.ShortSHA(s.TargetSHA))
	fmt.Fprint(out, "Risk: ")
	riskColor(s.RiskLevel).Fprintln(out, string(s.RiskLevel))
	fmt.Fprintf(out, "%d files, +%d -%d, %d commits reverted\n", s.FilesChanged, s.Additions, s.Deletions, s.CommitsReverted)
	for _, w := range s.Warnings {
		yellow.Fprintf(out, "  ! %s\n", w)
	}
	fmt.Fprintf(out, "%s\n", s.Recommendation)
}
