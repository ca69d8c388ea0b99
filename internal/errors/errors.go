// Package errors provides error types and handling for the discovery pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// Auth represents authentication/authorization errors (401, 403).
	Auth
	// NotFound represents 404 errors.
	NotFound
	// ServerError represents 5xx errors.
	ServerError
	// ClientError represents 4xx errors (except 401, 403, 404).
	ClientError
	// Parse represents parsing errors (HTML, JSON, event log).
	Parse
	// Browser represents browser/CDP errors.
	Browser
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Parse:
		return "parse"
	case Browser:
		return "browser"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this type should be retried.
// Endpoint probes are single-shot regardless; only locator fetches retry.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout, ServerError:
		return true
	default:
		return false
	}
}

// PipelineError represents a categorized pipeline error.
type PipelineError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new PipelineError.
func New(errType ErrorType, url, operation, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *PipelineError {
	return New(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *PipelineError {
	return New(Timeout, url, operation, "request timed out", cause)
}

// NewAuthError creates an authentication error.
func NewAuthError(url string, statusCode int, message string) *PipelineError {
	err := New(Auth, url, "request", message, nil)
	err.StatusCode = statusCode
	err.Retryable = false
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *PipelineError {
	err := New(Parse, url, operation, "parsing failed", cause)
	err.Retryable = false
	return err
}

// NewBrowserError creates a browser error. Browser startup/connect failure
// is the one fatal outcome of the pipeline.
func NewBrowserError(url, operation string, cause error) *PipelineError {
	err := New(Browser, url, operation, "browser operation failed", cause)
	err.Retryable = false
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *PipelineError {
	err := New(Cancelled, url, operation, "operation cancelled", nil)
	err.Retryable = false
	return err
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *PipelineError {
	if err == nil {
		return nil
	}

	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code, or nil
// for success statuses.
func CategorizeHTTPStatus(statusCode int, url string) *PipelineError {
	switch {
	case statusCode == 401:
		return NewAuthError(url, statusCode, "unauthorized")
	case statusCode == 403:
		return NewAuthError(url, statusCode, "forbidden")
	case statusCode == 404:
		e := New(NotFound, url, "request", "not found", nil)
		e.StatusCode = statusCode
		e.Retryable = false
		return e
	case statusCode >= 500:
		e := New(ServerError, url, "request", fmt.Sprintf("server returned %d", statusCode), nil)
		e.StatusCode = statusCode
		return e
	case statusCode >= 400:
		e := New(ClientError, url, "request", fmt.Sprintf("client error %d", statusCode), nil)
		e.StatusCode = statusCode
		e.Retryable = false
		return e
	default:
		return nil
	}
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// A connection dropped mid-response surfaces as a bare EOF wrapped in
	// url.Error, with no net.OpError in the chain.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsFatal reports whether an error should abort the pipeline. Only browser
// startup/connect failures are fatal; everything else degrades to an empty
// stage result.
func IsFatal(err error) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type == Browser
	}
	return false
}

// IsTransient reports whether an error is a per-candidate transient outcome
// (probe timeout or connection failure) that should be swallowed.
func IsTransient(err error) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type == Network || pipeErr.Type == Timeout
	}
	return isTimeout(err) || isNetworkError(err)
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type
	}
	return Unknown
}
