package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devflow-autopilot/types"
)

type recommendations struct {
	Recommendations []string `json:"recommendations" jsonschema:"required" jsonschema_description:"Actionable recommendations, most important first"`
}

// RecommendInput is a condensed view of a repository analysis.
type RecommendInput struct {
	Repo        types.RepositoryInfo
	Metrics     string
	Suggestions []string
	KeyDirs     []string
}

// Recommend asks the model for repository level recommendations.
func Recommend(ctx context.Context, g Generator, in RecommendInput) ([]string, error) {
	if g == nil {
		return nil, &types.ServiceUnavailableError{Service: "llm", Err: errors.New("no LLM provider configured")}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Review the repository %s (%s) and give at most 8 concrete recommendations to improve its structure and maintainability.\n\n", in.Repo.FullName, in.Repo.Language)
	fmt.Fprintf(&sb, "# Description\n%s\n\n# Metrics\n%s\n", in.Repo.Description, in.Metrics)
	if len(in.KeyDirs) > 0 {
		fmt.Fprintf(&sb, "\n# Key directories\n%s\n", strings.Join(in.KeyDirs, ", "))
	}
	if len(in.Suggestions) > 0 {
		sb.WriteString("\n# Findings from static checks\n")
		for _, s := range in.Suggestions {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	fmt.Fprintf(&sb, "\n# Output\nReturn one JSON object that matches this schema:\n%s\n", SchemaFor[recommendations]())

	resp, err := GenerateJSON[recommendations](ctx, g, Prompt{
		System: "You are a staff engineer reviewing open source repositories.",
		User:   sb.String(),
	})
	if err != nil {
		return nil, err
	}
	return dedupe(resp.Recommendations, strings.TrimSpace), nil
}
