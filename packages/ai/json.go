package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"devflow-autopilot/types"

	"github.com/invopop/jsonschema"
)

var errNoJSON = errors.New("no JSON object in model output")

// ExtractJSON returns the JSON object embedded in model output. Models often
// wrap JSON in markdown fences or add a sentence before it.
func ExtractJSON(out string) (string, error) {
	s := strings.TrimSpace(out)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop the language tag line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", errNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// GenerateJSON runs p on g and decodes the response into T. Output that is
// not valid JSON for T is a *types.ParseError.
func GenerateJSON[T any](ctx context.Context, g Generator, p Prompt) (T, error) {
	var zero T
	p.JSON = true

	out, err := g.Generate(ctx, p)
	if err != nil {
		return zero, err
	}

	raw, err := ExtractJSON(out)
	if err != nil {
		return zero, &types.ParseError{What: g.Name() + " response", Err: err}
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, &types.ParseError{What: g.Name() + " response", Err: err}
	}
	return v, nil
}

// SchemaFor renders the JSON schema of T for embedding in a prompt.
func SchemaFor[T any]() string {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	var zero T
	b, err := json.MarshalIndent(r.Reflect(&zero), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
