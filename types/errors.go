package types

import (
	"context"
	"errors"
	"fmt"
)

type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid repository URL %q: %s", e.URL, e.Reason)
}

// AuthError reports a missing or malformed credential.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication error: " + e.Reason
}

// UpstreamAPIError is a non-success response from GitHub or an LLM provider.
type UpstreamAPIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamAPIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "failed to parse " + e.What
	}
	return fmt.Sprintf("failed to parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type NetworkError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceUnavailableError means an optional capability is not configured or
// could not be reached.
type ServiceUnavailableError struct {
	Service string
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Err == nil {
		return e.Service + " is unavailable"
	}
	return fmt.Sprintf("%s is unavailable: %v", e.Service, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// ValidationError is a request that is well-formed JSON but semantically invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorKind returns a stable identifier for the error category.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		urlErr     *InvalidURLError
		authErr    *AuthError
		apiErr     *UpstreamAPIError
		parseErr   *ParseError
		netErr     *NetworkError
		unavailErr *ServiceUnavailableError
		validErr   *ValidationError
	)
	switch {
	case errors.As(err, &urlErr):
		return "invalid_url"
	case errors.As(err, &validErr):
		return "invalid_request"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &apiErr):
		return "upstream_api"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &unavailErr):
		return "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "network"
	default:
		return "internal"
	}
}

// IsClientKind reports whether an error of this kind was caused by the
// caller's input.
func IsClientKind(kind string) bool {
	switch kind {
	case "invalid_url", "invalid_request":
		return true
	}
	return false
}
