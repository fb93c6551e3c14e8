package cli

import (
	"fmt"
	"slices"
	"strconv"

	"devflow-autopilot/packages/analyzer"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var req service.AnalyzeRequest
	cmd := &cobra.Command{
		Use:   "analyze <github-url>",
		Short: "Analyze repository structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.connect(cmd)
			if err != nil {
				return err
			}
			req.GitHubURL = args[0]
			resp, err := b.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.emit(out, resp) {
				return nil
			}

			m := resp.Metrics
			bold.Fprintf(out, "%s", resp.RepoInfo.FullName)
			fmt.Fprintf(out, " at %s\n", types.ShortSHA(resp.HeadSHA))
			fmt.Fprintf(out, "%d files, %d analyzed, %d ignored, %d lines\n\n", m.TotalFiles, m.AnalyzedFiles, m.IgnoredFiles, m.TotalLines)
			if resp.Truncated {
				yellow.Fprintln(out, "The file list was truncated at the configured limit.")
			}

			langs := make([]string, 0, len(m.Languages))
			for lang := range m.Languages {
				langs = append(langs, lang)
			}
			slices.SortFunc(langs, func(x, y string) int { return m.Languages[y].Lines - m.Languages[x].Lines })
			table := newTable(out, "Language", "Files", "Lines")
			for _, lang := range langs {
				st := m.Languages[lang]
				_ = table.Append([]string{lang, strconv.Itoa(st.Files), strconv.Itoa(st.Lines)})
			}
			_ = table.Render()

			printSuggestions(cmd, "Structure", resp.StructureSuggestions)
			printSuggestions(cmd, "Cleanup", resp.CleanupSuggestions)
			if len(resp.Recommendations) > 0 {
				bold.Fprintln(out, "\nRecommendations")
				for i, r := range resp.Recommendations {
					fmt.Fprintf(out, "%2d. %s\n", i+1, r)
				}
			}
			if resp.AIError != "" {
				yellow.Fprintf(out, "\nAI recommendations unavailable: %s\n", resp.AIError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.AnalysisType, "type", "basic", "Analysis type: basic or ai")
	cmd.Flags().BoolVar(&req.IncludeDependencies, "deps", false, "Include the dependency graph")
	cmd.Flags().StringSliceVar(&req.ExcludePatterns, "exclude", nil, "Additional ignore patterns")
	return cmd
}

func printSuggestions(cmd *cobra.Command, title string, suggestions []analyzer.Suggestion) {
	if len(suggestions) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	bold.Fprintf(out, "\n%s suggestions\n", title)
	for _, s := range suggestions {
		fmt.Fprintf(out, "  [%s] %s\n", s.Category, s.Message)
	}
}
