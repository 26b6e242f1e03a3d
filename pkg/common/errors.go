// Package common provides the shared types used across the ereo RPC
// framework: the structured error taxonomy, the call context, and the
// interfaces the other packages compose around.
package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of RPC failure. Codes are stable protocol
// values: clients branch on the code, never on message prose.
type ErrorCode string

const (
	CodeParseError        ErrorCode = "PARSE_ERROR"
	CodeBadRequest        ErrorCode = "BAD_REQUEST"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeMethodMismatch    ErrorCode = "METHOD_MISMATCH"
	CodeMethodNotAllowed  ErrorCode = "METHOD_NOT_ALLOWED"
	CodeValidationError   ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeDuplicateID       ErrorCode = "DUPLICATE_ID"
	CodeSubscriptionError ErrorCode = "SUBSCRIPTION_ERROR"
	CodeCSRF              ErrorCode = "CSRF_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is the structured error type that crosses the dispatch boundary.
// Middleware returns it as a value; handlers may return it wrapped in a
// plain error, and the dispatcher unwraps it with AsError. Anything that
// is not an *Error is collapsed to a generic INTERNAL_ERROR before it
// reaches a client.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the error code to the HTTP status used when the error is
// sent over the HTTP transports. DUPLICATE_ID and SUBSCRIPTION_ERROR are
// protocol-level codes that only travel over WebSocket frames; they fall
// through to 500 if they ever reach an HTTP response.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeParseError, CodeBadRequest, CodeMethodMismatch, CodeValidationError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeCSRF:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of the error carrying the given details
// payload. The receiver is not modified.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// NewError creates a structured error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a structured *Error from an arbitrary error chain.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// Issue is a single sanitized validation finding. Only path, message, and
// code survive sanitization; any other fields a validator attaches are
// dropped before the error leaves the process.
type Issue struct {
	Path    []string `json:"path,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// Issuer is implemented by validation errors that carry per-field issues.
type Issuer interface {
	Issues() []Issue
}

type issuesError struct {
	issues []Issue
}

func (e *issuesError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return e.issues[0].Message
}

func (e *issuesError) Issues() []Issue { return e.issues }

// ValidationIssues builds a validator error carrying structured issues.
// The dispatcher sanitizes it into a VALIDATION_ERROR whose details are
// the issue list.
func ValidationIssues(issues ...Issue) error {
	return &issuesError{issues: issues}
}

// SanitizeValidation converts an arbitrary validator error into a
// VALIDATION_ERROR that is safe to send to clients. If the error exposes
// an issue list, only {path, message, code} per issue survive; otherwise
// only the message survives.
func SanitizeValidation(err error) *Error {
	var issuer Issuer
	if errors.As(err, &issuer) {
		issues := issuer.Issues()
		sanitized := make([]Issue, len(issues))
		for i, issue := range issues {
			sanitized[i] = Issue{Path: issue.Path, Message: issue.Message, Code: issue.Code}
		}
		out := NewError(CodeValidationError, "input validation failed")
		return out.WithDetails(sanitized)
	}
	return NewError(CodeValidationError, err.Error())
}
