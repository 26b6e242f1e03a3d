package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ereojs/ereo/pkg/common"
)

// CORSOptions configures Cross-Origin Resource Sharing headers.
type CORSOptions struct {
	Origins          []string      // Allowed origins (e.g. "https://example.com", "*"). Required.
	Methods          []string      // Allowed methods. Defaults to POST, OPTIONS if empty.
	Headers          []string      // Allowed request headers.
	ExposeHeaders    []string      // Headers the browser may read from responses.
	AllowCredentials bool          // Whether cookies/authorization headers are allowed.
	MaxAge           time.Duration // Preflight cache lifetime.
}

// WriteHeaders applies the CORS headers to the given header collection.
// Preflight-only headers (Allow-Methods, Allow-Headers, Max-Age) are
// included when preflight is true.
func (o *CORSOptions) WriteHeaders(h http.Header, preflight bool) {
	if len(o.Origins) > 0 {
		h.Set("Access-Control-Allow-Origin", strings.Join(o.Origins, ", "))
	}
	if o.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if preflight {
		methods := o.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodPost, http.MethodOptions}
		}
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		if len(o.Headers) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(o.Headers, ", "))
		}
		if o.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(int(o.MaxAge.Seconds())))
		}
		return
	}
	if len(o.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(o.ExposeHeaders, ", "))
	}
}

// CORS creates a step that writes CORS headers onto the call's response
// headers. It runs first in compiled chains so the headers survive even
// when a later step denies the call: response headers are applied to
// error responses as well as successful ones.
func CORS(options CORSOptions) Step {
	return StepFunc(func(ctx *common.Context, next Next) Result {
		options.WriteHeaders(ctx.ResponseHeaders, false)
		return next(ctx)
	})
}
