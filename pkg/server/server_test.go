package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/metrics"
	"github.com/ereojs/ereo/pkg/ratelimit"
	"github.com/ereojs/ereo/pkg/router"
	"github.com/ereojs/ereo/pkg/serverfn"
)

func testRouter(t *testing.T) *router.Router {
	t.Helper()
	routes := router.Routes{
		"system": router.Routes{
			"health": router.NewProcedure().Query(func(ctx *common.Context, input any) (any, error) {
				return map[string]string{"status": "ok"}, nil
			}),
		},
	}
	return router.New(routes, router.Config{Logger: zap.NewNop()})
}

func testRegistry(t *testing.T) *serverfn.Registry {
	t.Helper()
	r := serverfn.NewRegistry(serverfn.RegistryConfig{Logger: zap.NewNop()})
	r.MustRegister(serverfn.FnSpec{
		ID: "greet",
		Handler: func(ctx *common.Context, input any) (any, error) {
			return map[string]string{"greeting": "hello"}, nil
		},
	})
	return r
}

func TestNewRequiresRouter(t *testing.T) {
	assert.Panics(t, func() { New(Config{}) })
}

func TestHandlerServesRPC(t *testing.T) {
	s := New(Config{Router: testRouter(t), Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/rpc?path=system.health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	envelope, err := codec.DecodeResponse(rec.Body)
	require.NoError(t, err)
	assert.True(t, envelope.OK)
	assert.JSONEq(t, `{"status":"ok"}`, string(envelope.Data))
}

func TestHandlerServesCustomEndpoint(t *testing.T) {
	s := New(Config{Router: testRouter(t), Endpoint: "/api/rpc", Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/rpc?path=system.health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/rpc?path=system.health", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "default endpoint is not mounted")
}

func TestHandlerServesServerFunctions(t *testing.T) {
	s := New(Config{
		Router:   testRouter(t),
		Registry: testRegistry(t),
		Logger:   zap.NewNop(),
	})

	req := httptest.NewRequest("POST", "/_server-fn/greet", strings.NewReader(`{"input":{}}`))
	req.Header.Set("X-Csrf-Protection", "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope, err := codec.DecodeResponse(rec.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello"}`, string(envelope.Data))
}

func TestHandlerFunctionRouteRejectsOtherMethods(t *testing.T) {
	s := New(Config{
		Router:   testRouter(t),
		Registry: testRegistry(t),
		Logger:   zap.NewNop(),
	})

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/_server-fn/greet", nil))

			require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			envelope, err := codec.DecodeResponse(rec.Body)
			require.NoError(t, err)
			require.NotNil(t, envelope.Error)
			assert.Equal(t, common.CodeMethodNotAllowed, envelope.Error.Code,
				"rejected methods still get the error envelope")
		})
	}
}

func TestHandlerWithoutRegistrySkipsFunctionRoutes(t *testing.T) {
	s := New(Config{Router: testRouter(t), Logger: zap.NewNop()})

	req := httptest.NewRequest("POST", "/_server-fn/greet", strings.NewReader(`{"input":{}}`))
	req.Header.Set("X-Csrf-Protection", "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerServesMetrics(t *testing.T) {
	prom := metrics.NewPrometheus("ereo_test")
	prom.ObserveCall("query", "ok", 5*time.Millisecond)

	s := New(Config{Router: testRouter(t), Metrics: prom, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ereo_test_rpc_calls_total")
}

func TestShutdownClosesStore(t *testing.T) {
	store := ratelimit.NewStore(ratelimit.StoreConfig{Logger: zap.NewNop()})
	s := New(Config{Router: testRouter(t), Store: store, Logger: zap.NewNop()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	// A closed store still answers Allow; only its sweeper is gone.
	allowed, _, _ := store.Allow("k", 1, time.Minute)
	assert.True(t, allowed)
}
