package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies an orchestration error for session reporting.
type Kind string

const (
	// KindValidation - malformed input to a phase, never retried
	KindValidation Kind = "validation"
	// KindProvider - the generation collaborator failed or returned garbage
	KindProvider Kind = "provider"
	// KindCancelled - cooperative cancellation was observed
	KindCancelled Kind = "cancelled"
	// KindBlocked - a dependency failed; the task itself was never attempted
	KindBlocked Kind = "blocked"
	// KindInternal - anything the other kinds do not cover
	KindInternal Kind = "internal"
)

// ValidationError marks a phase input or phase output that failed shape
// validation. It is permanent: retrying produces the same result.
type ValidationError struct {
	Scope   string // phase or agent the bad value belongs to
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed (%s): %s: %v", e.Scope, e.Message, e.Err)
	}
	return fmt.Sprintf("validation failed (%s): %s", e.Scope, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a validation error scoped to a phase or agent.
func NewValidationError(scope, message string, err error) *ValidationError {
	return &ValidationError{Scope: scope, Message: message, Err: err}
}

// ProviderError wraps a failure from the generation collaborator. Transient
// provider errors (rate limits, 5xx, network) are retried with backoff before
// being surfaced; permanent ones fail the task or phase immediately.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s/%s failed (status %d): %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s/%s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider, model string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, StatusCode: statusCode, Err: err}
}

// ErrCancelled is the sentinel for cooperative cancellation. Callers wrap it
// with context via fmt.Errorf("...: %w", ErrCancelled).
var ErrCancelled = errors.New("cancelled")

// IsCancelled reports whether err stems from cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// KindOf maps an error onto the session-facing taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindProvider
	}
	if IsCancelled(err) {
		return KindCancelled
	}
	return KindInternal
}

// IsTransient checks if an error is retry-able.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}

	if IsCancelled(err) {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Permanent {
			return false
		}
		if pe.StatusCode > 0 {
			return isTransientHTTPStatus(pe.StatusCode)
		}
		return true
	}

	// Network errors (connection refused, timeout, etc.)
	if isNetworkError(err) {
		return true
	}

	// Syscall errors
	if isSyscallError(err) {
		return true
	}

	// Default: not transient
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}
