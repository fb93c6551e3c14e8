package cli

import (
	"fmt"
	"strings"

	"devflow-autopilot/packages/service"

	"github.com/spf13/cobra"
)

func newSEOCmd(a *app) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "seo <github-url>",
		Short: "Generate SEO metadata for a repository",
		Long: `Generate a title, description, keywords and topics for a repository from
its metadata and README. With --apply the metadata is committed on a new
branch and a pull request is opened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.connect(cmd)
			if err != nil {
				return err
			}
			res, err := b.SEO(cmd.Context(), service.SEORequest{GitHubURL: args[0], Apply: apply})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.emit(out, res) {
				return nil
			}

			m := res.Metadata
			bold.Fprintf(out, "SEO metadata for %s\n\n", res.Repository)
			fmt.Fprintf(out, "Title:       %s\n", m.Title)
			fmt.Fprintf(out, "Description: %s\n", m.Description)
			if len(m.Keywords) > 0 {
				fmt.Fprintf(out, "Keywords:    %s\n", strings.Join(m.Keywords, ", "))
			}
			if len(m.Topics) > 0 {
				fmt.Fprintf(out, "Topics:      %s\n", strings.Join(m.Topics, ", "))
			}
			if m.Summary != "" {
				fmt.Fprintf(out, "\n%s\n", m.Summary)
			}

			switch {
			case res.PullRequest != nil:
				green.Fprintf(out, "\nOpened pull request #%d: %s\n", res.PullRequest.Number, res.PullRequest.URL)
			case res.ManualPRLink != "":
				yellow.Fprintf(out, "\n%s\n", res.Message)
			case res.Message != "":
				fmt.Fprintf(out, "\n%s\n", res.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Commit the metadata and open a pull request")
	return cmd
}
