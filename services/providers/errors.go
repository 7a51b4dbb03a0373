package providers

import (
	"context"
	"errors"
	"net/http"
)

// ErrorKind classifies a failed backend call
type ErrorKind string

const (
	// KindRateLimited means the backend reported quota or request-rate exhaustion
	KindRateLimited ErrorKind = "rate_limited"

	// KindAuthInvalid means the credential was rejected
	KindAuthInvalid ErrorKind = "auth_invalid"

	// KindTransient covers network failures, timeouts and other non-2xx statuses
	KindTransient ErrorKind = "transient"

	// KindMalformedResponse means a 2xx reply lacked the expected text
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ProviderError is the only error type adapters return
type ProviderError struct {
	// Provider that generated the error
	Provider BackendID

	// Kind is the classification used by the orchestrator
	Kind ErrorKind

	// Message is a human-readable description
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider BackendID, kind ErrorKind, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ClassifyStatus maps an HTTP status code to an ErrorKind.
// 2xx statuses map to the empty kind.
func ClassifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ""
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return KindAuthInvalid
	default:
		return KindTransient
	}
}

// Classify converts any error into a *ProviderError. Errors that are not
// already provider errors become transient failures carrying their message.
func Classify(err error, provider BackendID) *ProviderError {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Kind == "" {
			provErr.Kind = KindTransient
		}
		if provErr.Provider == "" {
			provErr.Provider = provider
		}
		return provErr
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	} else if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	return NewProviderError(provider, KindTransient, msg, 0, err)
}

// IsRateLimited reports whether err is a rate-limit failure
func IsRateLimited(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.Kind == KindRateLimited
}
