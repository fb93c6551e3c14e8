package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devflow-autopilot/packages/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type claude struct {
	client anthropic.Client
	cfg    config.AIConfig
}

func newAnthropic(cfg config.AIConfig, opts ...option.RequestOption) *claude {
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &claude{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (c *claude) Name() string { return "anthropic" }

func (c *claude) Generate(ctx context.Context, p Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.AnthropicModel),
		MaxTokens: int64(c.cfg.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
		Temperature: anthropic.Float(float64(c.cfg.Temperature)),
	}
	system := p.System
	if p.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classify("anthropic", apiErr.StatusCode, apiErr.Error(), err)
		}
		return "", classify("anthropic", 0, "", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content generated")
	}
	return sb.String(), nil
}
