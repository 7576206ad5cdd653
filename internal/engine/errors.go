// Package engine provides the agent run-loop and its supporting state.
// This file contains the error taxonomy and provider error classification.
package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FatalError is non-retryable: bad config, auth failure, unsupported
// provider. It always ends the round in the error status.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatalf builds a FatalError from a format string.
func Fatalf(format string, args ...any) *FatalError {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// TransientError is retryable: rate limits, 5xx, network blips, stream
// timeouts. The run-loop retries it with exponential backoff up to a cap,
// then escalates to the error status.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transientf builds a TransientError from a format string.
func Transientf(format string, args ...any) *TransientError {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// ToolError is the single error family the run-loop sees from tool
// execution. It never escalates a round; it is captured as a tool-failure
// history item and fed back to the model as text.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// IsTransient reports whether err should go through the backoff-retry path.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is explicitly non-retryable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ClassifyProviderError wraps a raw provider error as FatalError or
// TransientError based on the HTTP status when known, falling back to
// string matching. Already-classified errors pass through unchanged.
func ClassifyProviderError(err error, httpStatus int) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsFatal(err) {
		return err
	}

	switch {
	case httpStatus == http.StatusTooManyRequests:
		return &TransientError{Err: err}
	case httpStatus >= 500:
		return &TransientError{Err: err}
	case httpStatus == http.StatusUnauthorized,
		httpStatus == http.StatusForbidden,
		httpStatus == http.StatusPaymentRequired,
		httpStatus == http.StatusBadRequest:
		return &FatalError{Err: err}
	}

	errStr := strings.ToLower(err.Error())

	// Rate limit / server errors - retryable
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "overloaded") {
		return &TransientError{Err: err}
	}

	// Network / timeout errors - retryable
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "network") {
		return &TransientError{Err: err}
	}

	// Auth / bad request / quota - non-retryable
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing") {
		return &FatalError{Err: err}
	}

	// Unknown provider errors are not retried.
	return &FatalError{Err: err}
}
