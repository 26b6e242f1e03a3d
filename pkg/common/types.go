package common

import (
	"net/http"
	"time"
)

// Validator checks and decodes a call's raw JSON input. Implementations
// return the decoded value on success, or an error describing why the
// input was rejected. Validator errors are sanitized at the dispatch
// boundary before they leave the process (see SanitizeValidation).
type Validator interface {
	Validate(data []byte) (any, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(data []byte) (any, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(data []byte) (any, error) { return f(data) }

// RateLimiter is the interface for rate limiting algorithms.
type RateLimiter interface {
	// Allow reports whether a request under the given key is allowed,
	// along with the number of remaining requests in the current window
	// and the approximate time until the limit resets.
	Allow(key string, limit int, window time.Duration) (allowed bool, remaining int, reset time.Duration)
}

// CreateContextFunc builds the opaque application context for one call.
// The hosting server injects it; the result becomes Context.App.
type CreateContextFunc func(r *http.Request) any

// GetUserFunc resolves the caller's user from the call context. A nil
// user with a nil error means the call is unauthenticated.
type GetUserFunc func(ctx *Context) (any, error)
