package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"devflow-autopilot/packages/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type gemini struct {
	apiKey string
	cfg    config.AIConfig
	opts   []option.ClientOption
}

func newGemini(cfg config.AIConfig, opts ...option.ClientOption) *gemini {
	return &gemini{apiKey: cfg.GeminiAPIKey, cfg: cfg, opts: opts}
}

func (g *gemini) Name() string { return "gemini" }

// statusError is a non-2xx Gemini response surfaced by the transport. The
// SDK only retries *googleapi.Error values, so failing inside the transport
// keeps every call to a single request.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini API returned status %d", e.Code)
}

// noRetryTransport authenticates with the API key header and turns every
// non-2xx response into a statusError.
type noRetryTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *noRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("x-goog-api-key", t.apiKey)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (g *gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	opts := append([]option.ClientOption{
		option.WithAPIKey(g.apiKey),
		option.WithHTTPClient(&http.Client{Transport: &noRetryTransport{apiKey: g.apiKey}}),
	}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", classify("gemini", 0, "", fmt.Errorf("failed to create Gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(g.cfg.GeminiModel)
	model.SetTemperature(g.cfg.Temperature)
	model.SetTopK(g.cfg.TopK)
	model.SetTopP(g.cfg.TopP)
	model.SetMaxOutputTokens(g.cfg.MaxOutputTokens)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}
	if p.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		var statusErr *statusError
		var apiErr *googleapi.Error
		switch {
		case errors.As(err, &statusErr):
			return "", classify("gemini", statusErr.Code, statusErr.Body, err)
		case errors.As(err, &apiErr):
			return "", classify("gemini", apiErr.Code, apiErr.Message, err)
		}
		return "", classify("gemini", 0, "", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content generated")
	}
	return sb.String(), nil
}
