package common

import (
	"context"
	"net/http"
)

// Well-known extension keys. Middleware stores values it wants handlers to
// see under these keys through the typed accessors below.
const (
	userKey     = "ereo.user"
	clientIPKey = "ereo.client_ip"
	traceIDKey  = "ereo.trace_id"
)

// Context carries the state visible to middleware and handlers for one
// call. Extension is copy-on-write: WithValue and the typed With* helpers
// return a new Context and never mutate the receiver, so a step upstream
// in a pipeline can hand the same base context to several branches safely.
//
// ResponseHeaders is the one deliberately shared mutable collection.
// Middleware and handlers may write headers into it; the dispatcher copies
// them onto the outgoing response after successful execution.
type Context struct {
	// Request is the inbound HTTP request, or the original WebSocket
	// upgrade request for subscription calls. May be a synthetic
	// placeholder when the transport did not preserve the request.
	Request *http.Request

	// App is the opaque application context produced by the host's
	// CreateContext callback.
	App any

	// ResponseHeaders collects headers to apply to the outgoing response.
	ResponseHeaders http.Header

	values map[string]any
}

// NewContext creates the base context for one call.
func NewContext(req *http.Request, app any) *Context {
	return &Context{
		Request:         req,
		App:             app,
		ResponseHeaders: make(http.Header),
	}
}

// WithValue returns a new Context extended with the given key/value pair.
// The values map is cloned; the receiver is unchanged.
func (c *Context) WithValue(key string, value any) *Context {
	clone := *c
	clone.values = make(map[string]any, len(c.values)+1)
	for k, v := range c.values {
		clone.values[k] = v
	}
	clone.values[key] = value
	return &clone
}

// Value reads an extension value set by an earlier middleware step.
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// WithUser returns a new Context carrying the authenticated user.
func (c *Context) WithUser(user any) *Context {
	return c.WithValue(userKey, user)
}

// User returns the authenticated user, if an auth step resolved one.
func (c *Context) User() (any, bool) {
	return c.Value(userKey)
}

// WithClientIP returns a new Context carrying the extracted client IP.
func (c *Context) WithClientIP(ip string) *Context {
	return c.WithValue(clientIPKey, ip)
}

// ClientIP returns the extracted client IP, if set.
func (c *Context) ClientIP() (string, bool) {
	v, ok := c.Value(clientIPKey)
	if !ok {
		return "", false
	}
	ip, ok := v.(string)
	return ip, ok
}

// WithTraceID returns a new Context carrying the trace ID. An existing
// trace ID is not overwritten.
func (c *Context) WithTraceID(traceID string) *Context {
	if c.TraceID() != "" {
		return c
	}
	return c.WithValue(traceIDKey, traceID)
}

// TraceID returns the trace ID, or "" if none was assigned.
func (c *Context) TraceID() string {
	v, ok := c.Value(traceIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// StdContext returns the request's context.Context, or context.Background
// when the call carries no request. Blocking work inside handlers should
// derive from it.
func (c *Context) StdContext() context.Context {
	if c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}
