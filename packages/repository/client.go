package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/metrics"
	"devflow-autopilot/types"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub REST client with the per-call timeout and the
// error mapping used across the services.
type Client struct {
	gh             *github.Client
	token          string
	authenticated  bool
	requestTimeout time.Duration
}

// NewClient builds a client from configuration. A malformed token is
// rejected here, before any request is made.
func NewClient(cfg config.GitHubConfig) (*Client, error) {
	if err := CheckToken(cfg.Token, false); err != nil {
		return nil, err
	}

	httpClient := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	gh := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(ensureTrailingSlash(cfg.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to parse GitHub base URL: %w", err)
		}
		gh.BaseURL = base
	}

	return &Client{
		gh:             gh,
		token:          cfg.Token,
		authenticated:  cfg.Token != "",
		requestTimeout: cfg.RequestTimeout,
	}, nil
}

// FromGitHub wraps an already authenticated client, such as the installation
// client handed to webhook handlers.
func FromGitHub(gh *github.Client, timeout time.Duration) *Client {
	return &Client{gh: gh, authenticated: true, requestTimeout: timeout}
}

// Authenticated reports whether write operations may be attempted.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// RequireAuth returns an AuthError when the client has no credential.
func (c *Client) RequireAuth() error {
	if !c.authenticated {
		return CheckToken(c.token, true)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// WrapGitHubError maps go-github and transport errors onto the error taxonomy
// and records the call outcome.
func WrapGitHubError(op string, err error) error {
	metrics.ObserveGitHub(op, err)
	if err == nil {
		return nil
	}

	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		respErr  *github.ErrorResponse
		netErr   net.Error
	)
	switch {
	case errors.As(err, &rateErr):
		return &types.UpstreamAPIError{Service: "github", StatusCode: statusCode(rateErr.Response), Body: rateErr.Message}
	case errors.As(err, &abuseErr):
		return &types.UpstreamAPIError{Service: "github", StatusCode: statusCode(abuseErr.Response), Body: abuseErr.Message}
	case errors.As(err, &respErr):
		return &types.UpstreamAPIError{Service: "github", StatusCode: statusCode(respErr.Response), Body: respErr.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return &types.NetworkError{Op: op, Timeout: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &types.NetworkError{Op: op, Err: err}
	case errors.As(err, &netErr):
		return &types.NetworkError{Op: op, Timeout: netErr.Timeout(), Err: err}
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func statusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiErr *types.UpstreamAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
