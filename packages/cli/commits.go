package cli

import (
	"errors"
	"fmt"

	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/spf13/cobra"
)

func newLatestCommitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest-commit <github-url>",
		Short: "Show the newest commit on the default branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.connect(cmd)
			if err != nil {
				return err
			}
			commit := b.LatestCommit(cmd.Context(), args[0])
			if commit == nil {
				return errors.New("could not fetch the latest commit")
			}
			out := cmd.OutOrStdout()
			if a.emit(out, commit) {
				return nil
			}
			printCommit(cmd, commit)
			return nil
		},
	}
}

func printCommit(cmd *cobra.Command, c *types.Commit) {
	out := cmd.OutOrStdout()
	yellow.Fprintf(out, "commit %s\n", c.SHA)
	fmt.Fprintf(out, "Author: %s\n", c.Author)
	fmt.Fprintf(out, "Date:   %s\n", c.Date.Format("Mon Jan 2 15:04:05 2006 -0700"))
	fmt.Fprintf(out, "\n    %s\n", c.Subject())
}

func newCheckPushCmd(a *app) *cobra.Command {
	var lastSHA string
	var tracked bool
	cmd := &cobra.Command{
		Use:   "check-push <github-url>",
		Short: "Check whether the repository received a new push",
		Long: `Compare the newest commit with --last-sha. Without --last-sha any commit
counts as new, unless --tracked compares against the last commit recorded in
the state store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.connect(cmd)
			if err != nil {
				return err
			}
			check := b.CheckPush(cmd.Context(), service.PushCheckRequest{GitHubURL: args[0], LastKnownSHA: lastSHA, UseTrackedState: tracked})
			out := cmd.OutOrStdout()
			if check.Error != "" {
				if a.emit(out, check) {
					return errors.New(check.Error)
				}
				return fmt.Errorf("push check failed: %s", check.Error)
			}
			if a.emit(out, check) {
				return nil
			}
			if check.HasNewPush {
				green.Fprintf(out, "New push detected: %s\n", check.Latest.ShortSHA())
				if check.PreviousSHA != "" {
					fmt.Fprintf(out, "Previous commit:   %s\n", types.ShortSHA(check.PreviousSHA))
				}
				printCommit(cmd, check.Latest)
				return nil
			}
			fmt.Fprintf(out, "No new push since %s\n", types.ShortSHA(check.PreviousSHA))
			return nil
		},
	}
	cmd.Flags().StringVar(&lastSHA, "last-sha", "", "Last commit SHA already seen")
	cmd.Flags().BoolVar(&tracked, "tracked", false, "Compare against the SHA recorded in the state store")
	return cmd
}
