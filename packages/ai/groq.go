package ai

import (
	"context"
	"errors"
	"fmt"

	"devflow-autopilot/packages/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// groq talks to Groq through its OpenAI compatible chat completions API.
type groq struct {
	client openai.Client
	cfg    config.AIConfig
}

func newGroq(cfg config.AIConfig, opts ...option.RequestOption) *groq {
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.GroqAPIKey),
		option.WithBaseURL(cfg.GroqBaseURL),
		option.WithMaxRetries(0),
	}, opts...)
	return &groq{client: openai.NewClient(opts...), cfg: cfg}
}

func (g *groq) Name() string { return "groq" }

func (g *groq) Generate(ctx context.Context, p Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.cfg.GroqModel),
		Messages:    messages,
		Temperature: openai.Float(float64(g.cfg.Temperature)),
		TopP:        openai.Float(float64(g.cfg.TopP)),
		MaxTokens:   openai.Int(int64(g.cfg.MaxOutputTokens)),
	}
	if p.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify("groq", apiErr.StatusCode, apiErr.Message, err)
		}
		return "", classify("groq", 0, "", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no content generated")
	}
	return resp.Choices[0].Message.Content, nil
}
