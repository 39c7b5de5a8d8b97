// Package apperr defines the error taxonomy shared across scriptsmith's
// subsystems. Every error that crosses a package boundary from cache,
// provider, policy, scanner, sandbox, or engine code is wrapped in an
// *Error carrying one of the Kind values below, so the engine can map
// failures to external response codes without type-switching on each
// package's bespoke error type.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the taxonomy of a scriptsmith error.
type Kind string

// Error kinds, matching the taxonomy of the core specification.
const (
	KindInvalidRequest       Kind = "invalid_request"
	KindSecurityViolation    Kind = "security_violation"
	KindNoProvidersAvailable Kind = "no_providers_available"
	KindProviderFailure      Kind = "provider_failure"
	KindCacheFailure         Kind = "cache_failure"
	KindSandboxFailure       Kind = "sandbox_failure"
	KindCancelled            Kind = "cancelled"
	KindNotFound             Kind = "not_found"
	KindInternal             Kind = "internal"
)

// Error is the structured error type carried across package boundaries.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error under the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WrapRetryable wraps an existing error under the given kind, marking it retryable.
func WrapRetryable(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Retryable: true}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// does not carry a scriptsmith *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err carries an *Error marked retryable
// (as WrapRetryable does), whatever its Kind.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
