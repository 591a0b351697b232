// Package errors defines the error taxonomy shared by the realtime event
// plane and the REST surface. Every kind maps 1:1 onto a wire-level error
// event name or an HTTP status.
package errors

import (
	"errors"
	"fmt"
)

// Error kinds.
const (
	// ErrInvalidToken is returned when no token verification path accepts a credential.
	ErrInvalidToken = "invalid_token"

	// ErrInvalidInvite is returned when an invite key does not resolve to a live session.
	ErrInvalidInvite = "invalid_invite"

	// ErrSessionFull is returned when a join would exceed the session's user limit.
	ErrSessionFull = "session_full"

	// ErrGuestDenied is returned when a guest principal joins a session that disallows guests.
	ErrGuestDenied = "guest_denied"

	// ErrSessionNotFound is returned when a session id does not resolve to a live session.
	ErrSessionNotFound = "session_not_found"

	// ErrAccessDenied is returned when a principal lacks the permission an event requires.
	ErrAccessDenied = "access_denied"

	// ErrInvalidPayload is returned when an event payload fails validation.
	ErrInvalidPayload = "invalid_payload"

	// ErrUnsupportedLanguage is returned when an execution request names an unknown language.
	ErrUnsupportedLanguage = "unsupported_language"

	// ErrExecutionTimeout is returned when the sandbox call exceeds its deadline.
	ErrExecutionTimeout = "execution_timeout"

	// ErrExecutionFailed is returned when the sandbox call fails for any other reason.
	ErrExecutionFailed = "execution_failed"

	// ErrRateLimited is returned when a handshake exceeds the per-IP connection window.
	ErrRateLimited = "rate_limited"

	// ErrInternal is returned for unrecoverable internal errors.
	ErrInternal = "internal"
)

// Error represents an error in the application.
type Error struct {
	// Type is the error kind.
	Type string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidTokenError creates a new invalid token error.
func NewInvalidTokenError(message string, cause error) *Error {
	return NewError(ErrInvalidToken, message, cause)
}

// NewInvalidInviteError creates a new invalid invite error.
func NewInvalidInviteError(message string) *Error {
	return NewError(ErrInvalidInvite, message, nil)
}

// NewSessionFullError creates a new session full error.
func NewSessionFullError(message string) *Error {
	return NewError(ErrSessionFull, message, nil)
}

// NewGuestDeniedError creates a new guest denied error.
func NewGuestDeniedError(message string) *Error {
	return NewError(ErrGuestDenied, message, nil)
}

// NewSessionNotFoundError creates a new session not found error.
func NewSessionNotFoundError(message string) *Error {
	return NewError(ErrSessionNotFound, message, nil)
}

// NewAccessDeniedError creates a new access denied error.
func NewAccessDeniedError(message string) *Error {
	return NewError(ErrAccessDenied, message, nil)
}

// NewInvalidPayloadError creates a new invalid payload error.
func NewInvalidPayloadError(message string) *Error {
	return NewError(ErrInvalidPayload, message, nil)
}

// NewUnsupportedLanguageError creates a new unsupported language error.
func NewUnsupportedLanguageError(message string) *Error {
	return NewError(ErrUnsupportedLanguage, message, nil)
}

// NewExecutionTimeoutError creates a new execution timeout error.
func NewExecutionTimeoutError(message string, cause error) *Error {
	return NewError(ErrExecutionTimeout, message, cause)
}

// NewExecutionFailedError creates a new execution failed error.
func NewExecutionFailedError(message string, cause error) *Error {
	return NewError(ErrExecutionFailed, message, cause)
}

// NewRateLimitedError creates a new rate limited error.
func NewRateLimitedError(message string) *Error {
	return NewError(ErrRateLimited, message, nil)
}

// Kind returns the kind of an error, or ErrInternal if the error does not
// carry one.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind string) bool {
	return Kind(err) == kind
}
