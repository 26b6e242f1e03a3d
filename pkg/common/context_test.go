package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCopyOnWrite(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	base := NewContext(req, "app-state")

	derived := base.WithValue("k", 42)

	_, ok := base.Value("k")
	assert.False(t, ok, "base context must not see the derived value")

	v, ok := derived.Value("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, "app-state", derived.App)
	assert.Same(t, req, derived.Request)
}

func TestContextSharedResponseHeaders(t *testing.T) {
	base := NewContext(httptest.NewRequest("GET", "/rpc", nil), nil)
	derived := base.WithValue("k", "v").WithUser("u")

	derived.ResponseHeaders.Set("X-Custom", "yes")

	assert.Equal(t, "yes", base.ResponseHeaders.Get("X-Custom"),
		"response headers are shared across derived contexts")
}

func TestContextUser(t *testing.T) {
	base := NewContext(httptest.NewRequest("GET", "/rpc", nil), nil)

	_, ok := base.User()
	assert.False(t, ok)

	withUser := base.WithUser(map[string]string{"id": "u1"})
	user, ok := withUser.User()
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "u1"}, user)
}

func TestContextTraceIDFirstWriterWins(t *testing.T) {
	base := NewContext(httptest.NewRequest("GET", "/rpc", nil), nil)
	assert.Empty(t, base.TraceID())

	first := base.WithTraceID("trace-1")
	second := first.WithTraceID("trace-2")

	assert.Equal(t, "trace-1", first.TraceID())
	assert.Equal(t, "trace-1", second.TraceID(), "an assigned trace id is never overwritten")
}

func TestContextClientIP(t *testing.T) {
	base := NewContext(httptest.NewRequest("GET", "/rpc", nil), nil)
	withIP := base.WithClientIP("10.0.0.1")

	ip, ok := withIP.ClientIP()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip)
}

func TestStdContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/rpc", nil)
	ctx := NewContext(req, nil)
	assert.Equal(t, req.Context(), ctx.StdContext())

	assert.NotNil(t, NewContext(nil, nil).StdContext(),
		"a call without a request still gets a usable context")
}
