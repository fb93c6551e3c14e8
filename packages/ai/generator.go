// Package ai wraps the LLM providers behind a single Generator interface and
// builds the SEO and root cause generators on top of it.
package ai

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/metrics"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

// Prompt is a single LLM request.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Generator produces text for a prompt. Implementations never retry.
type Generator interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// New returns the generator selected by cfg.Provider. With "auto" the first
// provider that has an API key wins, in the order gemini, groq, anthropic.
func New(cfg config.AIConfig) (Generator, error) {
	var g Generator
	switch strings.ToLower(cfg.Provider) {
	case "", "auto":
		switch {
		case cfg.GeminiAPIKey != "":
			g = newGemini(cfg)
		case cfg.GroqAPIKey != "":
			g = newGroq(cfg)
		case cfg.AnthropicAPIKey != "":
			g = newAnthropic(cfg)
		default:
			return nil, &types.ServiceUnavailableError{
				Service: "llm",
				Err:     errors.New("no API key configured, set GEMINI_API_KEY, GROQ_API_KEY or ANTHROPIC_API_KEY"),
			}
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, missingKey("gemini", "GEMINI_API_KEY")
		}
		g = newGemini(cfg)
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil, missingKey("groq", "GROQ_API_KEY")
		}
		g = newGroq(cfg)
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, missingKey("anthropic", "ANTHROPIC_API_KEY")
		}
		g = newAnthropic(cfg)
	case "none":
		return nil, &types.ServiceUnavailableError{Service: "llm", Err: errors.New("ai.provider is none")}
	default:
		return nil, &types.ValidationError{Field: "ai.provider", Reason: "unknown provider " + cfg.Provider}
	}
	return Instrument(g, cfg.RequestTimeout), nil
}

func missingKey(provider, env string) error {
	return &types.ServiceUnavailableError{Service: provider, Err: errors.New(env + " not set in environment")}
}

type instrumented struct {
	Generator
	timeout time.Duration
}

// Instrument bounds every call by timeout and records it in metrics.
func Instrument(g Generator, timeout time.Duration) Generator {
	return &instrumented{Generator: g, timeout: timeout}
}

func (i *instrumented) Generate(ctx context.Context, p Prompt) (string, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	log := clog.FromContext(ctx).With("provider", i.Name())

	start := time.Now()
	out, err := i.Generator.Generate(ctx, p)
	elapsed := time.Since(start)
	metrics.ObserveLLM(i.Name(), elapsed, err)
	if err != nil {
		log.Warnf("LLM request failed after %s: %v", elapsed.Round(time.Millisecond), err)
		return "", err
	}
	log.With("chars", len(out)).Debugf("LLM request completed in %s", elapsed.Round(time.Millisecond))
	return out, nil
}

// classify maps a transport level failure into the error taxonomy. status is
// the provider's HTTP status, or zero when none was received.
func classify(service string, status int, body string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &types.NetworkError{Op: service + " request", Timeout: true, Err: err}
	case status != 0:
		return &types.UpstreamAPIError{Service: service, StatusCode: status, Body: body}
	case errors.As(err, &netErr):
		return &types.NetworkError{Op: service + " request", Timeout: netErr.Timeout(), Err: err}
	default:
		return &types.ServiceUnavailableError{Service: service, Err: err}
	}
}
