// Package server hosts the RPC router, the subscription engine, and
// the server-function registry behind one http.Server with a shared
// lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ereojs/ereo/pkg/metrics"
	"github.com/ereojs/ereo/pkg/ratelimit"
	"github.com/ereojs/ereo/pkg/router"
	"github.com/ereojs/ereo/pkg/serverfn"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Config describes one server instance. Router is required; the rest
// is optional.
type Config struct {
	// Addr is the listen address, for example :8080.
	Addr string
	// Endpoint is the RPC path. Defaults to /rpc. GET requests that
	// carry a WebSocket upgrade become subscription connections when
	// EnableWebSockets is set.
	Endpoint string
	Logger   *zap.Logger
	Router   *router.Router
	// Registry mounts server functions under their base path.
	Registry *serverfn.Registry
	// Metrics mounts the exposer at MetricsPath.
	Metrics     metrics.Exposer
	MetricsPath string

	EnableWebSockets bool
	Upgrade          router.UpgradeConfig

	// Store is closed on shutdown when set, stopping its sweeper.
	Store *ratelimit.Store

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is a configured http.Server plus the ereo handlers mounted
// on it.
type Server struct {
	config Config
	logger *zap.Logger
	engine *router.SubscriptionEngine
	http   *http.Server
}

// New assembles a server. It panics if config.Router is nil, since
// nothing can be served without one.
func New(config Config) *Server {
	if config.Router == nil {
		panic("server: config.Router is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Endpoint == "" {
		config.Endpoint = "/rpc"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	s := &Server{
		config: config,
		logger: config.Logger.Named("server"),
	}
	if config.EnableWebSockets {
		s.engine = router.NewSubscriptionEngine(config.Router)
	}
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      s.mux(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the assembled handler, for tests and for hosts
// that bring their own http.Server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) mux() http.Handler {
	mux := httprouter.New()
	mux.HandlerFunc(http.MethodGet, s.config.Endpoint, s.serveRPC)
	mux.HandlerFunc(http.MethodPost, s.config.Endpoint, s.serveRPC)

	if s.config.Registry != nil {
		// Every method routes to the registry so rejected methods get
		// the protocol's error envelope, not httprouter's plain 405.
		registryPath := s.config.Registry.BasePath() + "/*id"
		for _, method := range []string{
			http.MethodPost, http.MethodOptions, http.MethodGet,
			http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete,
		} {
			mux.Handler(method, registryPath, s.config.Registry)
		}
	}
	if s.config.Metrics != nil {
		mux.Handler(http.MethodGet, s.config.MetricsPath, s.config.Metrics.Handler())
	}
	return mux
}

func (s *Server) serveRPC(w http.ResponseWriter, req *http.Request) {
	if s.engine != nil && req.Method == http.MethodGet && websocket.IsWebSocketUpgrade(req) {
		if err := s.engine.Upgrade(w, req, s.config.Upgrade); err != nil {
			s.logger.Debug("websocket upgrade failed", zap.Error(err))
		}
		return
	}
	s.config.Router.ServeHTTP(w, req)
}

// ListenAndServe blocks serving requests until Shutdown or a listener
// error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", zap.String("addr", s.config.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then closes the rate-limit
// store if one was attached. Active WebSocket read loops end when
// their clients disconnect; a subscription handler that never yields
// between values can delay this past the context deadline, since
// cancellation is cooperative.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.http.Shutdown(ctx)
	if s.config.Store != nil {
		s.config.Store.Close()
	}
	return err
}
