package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"radio-stack/internal/models"
)

// ErrorKind classifies provider failures so callers can decide whether a
// retry is worth attempting. The gateway itself never retries.
type ErrorKind string

const (
	// KindConfig: bad or missing configuration. Never retried.
	KindConfig ErrorKind = "config"
	// KindAuth: bad or missing credential. Fatal for the provider until fixed.
	KindAuth ErrorKind = "auth"
	// KindRateLimited: vendor throttled us. Retryable with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout: the call exceeded its deadline. Retryable once.
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable: vendor-side failure. Surfaced, caller decides.
	KindUnavailable ErrorKind = "unavailable"
	// KindContentTooLong: synthesis input exceeds the backend per-call limit.
	KindContentTooLong ErrorKind = "content_too_long"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider models.Provider
	Message  string
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Provider, e.Message)
}

// NewError builds a classified provider error.
func NewError(kind ErrorKind, provider models.Provider, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, defaulting to unavailable for
// unclassified failures.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnavailable
}

// Retryable reports whether the caller may retry the failed call with
// backoff. Config and auth failures are never retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// classifyStatus maps an HTTP response status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusRequestEntityTooLarge:
		return KindContentTooLong
	default:
		return KindUnavailable
	}
}

// httpError classifies a non-2xx vendor response.
func httpError(provider models.Provider, status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return NewError(classifyStatus(status), provider, "status %d: %s", status, msg)
}

// wrapTransport classifies transport-level failures (DNS, connection,
// context deadline) from http.Client.Do.
func wrapTransport(provider models.Provider, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, "request deadline exceeded")
	}
	return NewError(KindUnavailable, provider, "%v", err)
}
