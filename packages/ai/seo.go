package ai

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"devflow-autopilot/types"
)

const (
	maxTitleLen       = 70
	maxDescriptionLen = 160
	maxTopics         = 20
	maxTopicLen       = 50
)

// SEOMetadata is the search and social metadata proposed for a repository.
type SEOMetadata struct {
	Title         string   `json:"title" jsonschema:"required" jsonschema_description:"Page title, at most 70 characters"`
	Description   string   `json:"description" jsonschema:"required" jsonschema_description:"Meta description, at most 160 characters"`
	Keywords      []string `json:"keywords" jsonschema_description:"Search keywords"`
	Topics        []string `json:"topics" jsonschema_description:"GitHub topics: lowercase letters, digits and hyphens"`
	OGTitle       string   `json:"og_title" jsonschema_description:"Open Graph title"`
	OGDescription string   `json:"og_description" jsonschema_description:"Open Graph description"`
	Summary       string   `json:"summary" jsonschema_description:"One paragraph summary of the project"`
}

type SEOInput struct {
	Repo   types.RepositoryInfo
	Readme string
	// Paths holds top level file and directory names.
	Paths []string
}

type SEOGenerator struct {
	gen         Generator
	readmeLimit int
}

func NewSEOGenerator(g Generator, readmeLimit int) *SEOGenerator {
	return &SEOGenerator{gen: g, readmeLimit: readmeLimit}
}

func (s *SEOGenerator) Generate(ctx context.Context, in SEOInput) (*SEOMetadata, error) {
	if s.gen == nil {
		return nil, &types.ServiceUnavailableError{Service: "llm", Err: errors.New("no LLM provider configured")}
	}

	meta, err := GenerateJSON[SEOMetadata](ctx, s.gen, Prompt{
		System: "You are an SEO specialist for open source projects. You write accurate, concise metadata and never invent features.",
		User:   s.buildPrompt(in),
	})
	if err != nil {
		return nil, err
	}
	if err := normalizeSEO(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *SEOGenerator) buildPrompt(in SEOInput) string {
	readme := in.Readme
	if s.readmeLimit > 0 && len(readme) > s.readmeLimit {
		readme = truncateUTF8(readme, s.readmeLimit) + "\n[truncated]"
	}
	if readme == "" {
		readme = "(no README)"
	}

	langs := slices.Sorted(maps.Keys(in.Repo.Languages))

	return fmt.Sprintf(`Generate SEO metadata for the GitHub repository below.

# Repository
Name: %s
Description: %s
Homepage: %s
Primary language: %s
Languages: %s
Current topics: %s
License: %s
Top level paths: %s

# README
%s

# Output
Return one JSON object that matches this schema:
%s

Rules:
- title at most %d characters, description at most %d characters
- at most %d topics, each lowercase with hyphens instead of spaces
- only describe what the repository actually contains`,
		in.Repo.FullName,
		in.Repo.Description,
		in.Repo.Homepage,
		in.Repo.Language,
		strings.Join(langs, ", "),
		strings.Join(in.Repo.Topics, ", "),
		in.Repo.License,
		strings.Join(in.Paths, ", "),
		readme,
		SchemaFor[SEOMetadata](),
		maxTitleLen, maxDescriptionLen, maxTopics,
	)
}

var topicInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

func normalizeSEO(m *SEOMetadata) error {
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	if m.Title == "" {
		return &types.ParseError{What: "SEO metadata", Err: errors.New("missing title")}
	}
	if m.Description == "" {
		return &types.ParseError{What: "SEO metadata", Err: errors.New("missing description")}
	}

	m.Title = clip(m.Title, maxTitleLen)
	m.Description = clip(m.Description, maxDescriptionLen)
	if m.OGTitle = clip(strings.TrimSpace(m.OGTitle), maxTitleLen); m.OGTitle == "" {
		m.OGTitle = m.Title
	}
	if m.OGDescription = clip(strings.TrimSpace(m.OGDescription), maxDescriptionLen); m.OGDescription == "" {
		m.OGDescription = m.Description
	}
	m.Keywords = dedupe(m.Keywords, strings.TrimSpace)
	m.Topics = dedupe(m.Topics, normalizeTopic)
	if len(m.Topics) > maxTopics {
		m.Topics = m.Topics[:maxTopics]
	}
	return nil
}

func normalizeTopic(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "-")
	t = strings.Trim(topicInvalid.ReplaceAllString(t, ""), "-")
	if len(t) > maxTopicLen {
		t = strings.TrimRight(t[:maxTopicLen], "-")
	}
	return t
}

func dedupe(in []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = norm(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

// clip shortens s to at most n runes, cutting at a word boundary when one is
// close to the limit.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)*3/4 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-")
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
