package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a provider failure for fallback policy decisions.
type Kind string

const (
	// KindValidation means the caller's input was rejected before any
	// network call. Falling back will not help.
	KindValidation Kind = "validation"

	// KindAuth means credentials were rejected. The provider is disabled
	// for the rest of the process lifetime.
	KindAuth Kind = "auth"

	// KindRateLimited means the provider throttled the call. Transient;
	// does not count against the provider's health.
	KindRateLimited Kind = "rate_limited"

	// KindTimeout means the per-call deadline elapsed.
	KindTimeout Kind = "timeout"

	// KindBadResponse means the provider answered with something
	// malformed, empty, or a server-side error.
	KindBadResponse Kind = "bad_response"

	// KindUnknown covers everything else (network failures and the like).
	// Treated like a bad response for health accounting.
	KindUnknown Kind = "unknown"
)

// Sentinel errors shared by all capability packages.
var (
	// ErrBadResponse marks a malformed or empty provider response.
	ErrBadResponse = errors.New("provider: malformed provider response")

	// ErrNoProviders is returned when a chain is built without bindings.
	ErrNoProviders = errors.New("provider: no providers configured")

	// ErrNoCredentials is returned when an adapter is constructed without
	// the credentials it needs.
	ErrNoCredentials = errors.New("provider: credentials required")
)

// ValidationError reports caller-supplied input that an adapter rejected
// before making any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("provider: invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// APIError represents an error response from a provider's HTTP API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the provider's error code, if it sent one.
	Code string

	// Provider identifies which backend returned the error.
	Provider string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true for HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }

// IsUnauthorized returns true for HTTP 401 and 403.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == 401 || e.StatusCode == 403 }

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError wraps an error with provider context. Returns nil for nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// Classify maps an adapter error onto the fallback taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	var ae *APIError
	if errors.As(err, &ae) {
		switch {
		case ae.IsUnauthorized():
			return KindAuth
		case ae.IsRateLimited():
			return KindRateLimited
		case ae.IsServerError():
			return KindBadResponse
		default:
			return KindBadResponse
		}
	}

	if errors.Is(err, ErrBadResponse) {
		return KindBadResponse
	}

	return KindUnknown
}
