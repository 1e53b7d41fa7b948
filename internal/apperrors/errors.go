// Package apperrors defines the error taxonomy shared by the access boundary.
// Services return these typed errors; the handler layer maps them to HTTP
// statuses without leaking internal detail to clients.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a machine-usable error code carried to the client so it can decide
// how to react (e.g. silently refresh a session vs. force re-login).
type Code string

const (
	CodeConfigurationError     Code = "configuration_error"
	CodeSessionNotFound        Code = "session_not_found"
	CodeSessionIdleTimeout     Code = "session_idle_timeout"
	CodeSessionAbsoluteTimeout Code = "session_absolute_timeout"
	CodeSessionRevoked         Code = "session_revoked"
	CodeAccountLocked          Code = "account_locked"
	CodePermissionDenied       Code = "permission_denied"
	CodeValidationError        Code = "validation_error"
	CodeGuardrailViolation     Code = "guardrail_violation"
	CodeReadOnlyToken          Code = "read_only_token"
)

// Error is a typed application error with an HTTP status and machine code.
// Message is safe to show to clients; Detail is server-side only.
type Error struct {
	Code    Code
	Status  int
	Message string
	Detail  string
	// UnlockAt is set for account_locked errors.
	UnlockAt *time.Time
	wrapped  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is treats two *Error values with the same Code as equal, so callers can use
// errors.Is with the sentinel constructors below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Configuration returns a fatal fail-closed configuration error. Clients see
// generic text; detail goes to server-side logs only.
func Configuration(detail string) *Error {
	return &Error{
		Code:    CodeConfigurationError,
		Status:  http.StatusInternalServerError,
		Message: "security configuration error",
		Detail:  detail,
	}
}

// SessionInvalid returns a 401 with the given session sub-code.
// code must be one of CodeSessionNotFound, CodeSessionIdleTimeout,
// CodeSessionAbsoluteTimeout, CodeSessionRevoked.
func SessionInvalid(code Code, message string) *Error {
	return &Error{Code: code, Status: http.StatusUnauthorized, Message: message}
}

// AccountLocked returns a 403 carrying the unlock time.
func AccountLocked(unlockAt time.Time) *Error {
	return &Error{
		Code:     CodeAccountLocked,
		Status:   http.StatusForbidden,
		Message:  "account is temporarily locked",
		UnlockAt: &unlockAt,
	}
}

// PermissionDenied returns a 403 with a non-sensitive human reason. The
// reason must never reveal which fields or resources exist.
func PermissionDenied(reason string) *Error {
	return &Error{Code: CodePermissionDenied, Status: http.StatusForbidden, Message: reason}
}

// Validation returns a 400 for a malformed or incomplete request.
func Validation(message string) *Error {
	return &Error{Code: CodeValidationError, Status: http.StatusBadRequest, Message: message}
}

// Guardrail returns a 500 for a blocked query. Clients get generic text; the
// offending statement is recorded in Detail for server-side logs.
func Guardrail(detail string) *Error {
	return &Error{
		Code:    CodeGuardrailViolation,
		Status:  http.StatusInternalServerError,
		Message: "security configuration error",
		Detail:  detail,
	}
}

// ReadOnly returns the fixed 403 used when a read-only token attempts a
// non-idempotent method.
func ReadOnly() *Error {
	return &Error{
		Code:    CodeReadOnlyToken,
		Status:  http.StatusForbidden,
		Message: "token is read-only",
	}
}

// Wrap attaches a cause to e without changing what the client sees.
func (e *Error) Wrap(err error) *Error {
	e.wrapped = err
	return e
}

// StatusOf returns the HTTP status for err: the typed status for *Error,
// otherwise 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the machine code for err, or empty for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
