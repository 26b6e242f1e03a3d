package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/julien040/go-ternary"
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/metrics"
	"github.com/ereojs/ereo/pkg/middleware"
)

// Config is the router's global configuration.
type Config struct {
	// Logger for all router operations. Defaults to a production zap
	// logger, falling back to a no-op logger.
	Logger *zap.Logger

	// CreateContext builds the application context for each call. When
	// nil, Context.App is nil.
	CreateContext common.CreateContextFunc

	// Steps are global middleware run before every procedure's own
	// steps.
	Steps []middleware.Step

	// IPConfig controls client IP extraction; nil uses the default.
	IPConfig *middleware.IPConfig

	// TraceIDs enables trace ID assignment ahead of all other steps.
	TraceIDs bool

	// Transactor, when set, wraps mutation handlers in database
	// transactions.
	Transactor *middleware.Transactor

	// Metrics receives call observations; nil disables collection.
	Metrics metrics.Collector

	// MaxBodySize bounds POST bodies in bytes. Zero means no limit.
	MaxBodySize int64

	// LogCallsAtInfo logs completed calls at Info instead of Debug.
	LogCallsAtInfo bool
}

// Router dispatches RPC calls against a route tree.
type Router struct {
	routes  Routes
	config  Config
	logger  *zap.Logger
	steps   []middleware.Step
	metrics metrics.Collector
}

// New creates a Router over the given route tree.
func New(routes Routes, config Config) *Router {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}
	logger = logger.Named("ereo")

	collector := config.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	steps := make([]middleware.Step, 0, len(config.Steps)+3)
	steps = append(steps, middleware.ClientIP(config.IPConfig))
	if config.TraceIDs {
		steps = append(steps, middleware.TraceID(nil))
	}
	steps = append(steps, middleware.Logging(logger))
	steps = append(steps, config.Steps...)

	return &Router{
		routes:  routes,
		config:  config,
		logger:  logger,
		steps:   steps,
		metrics: collector,
	}
}

// call is one parsed transport-level invocation.
type call struct {
	path  []string
	kind  Kind
	input json.RawMessage
}

// callPath accepts both wire encodings of a procedure path: a JSON array
// of segments or a dot-separated string.
type callPath []string

func (p *callPath) UnmarshalJSON(data []byte) error {
	var segments []string
	if err := json.Unmarshal(data, &segments); err == nil {
		*p = segments
		return nil
	}
	var dotted string
	if err := json.Unmarshal(data, &dotted); err != nil {
		return fmt.Errorf("path must be a string or an array of strings")
	}
	*p = SplitPath(dotted)
	return nil
}

// ServeHTTP implements http.Handler for the RPC endpoint.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !r.Handle(w, req) {
		r.writeError(w, nil, common.NewError(common.CodeMethodNotAllowed, "method not allowed"))
	}
}

// Handle dispatches the request if it belongs to the RPC protocol.
// It returns false, leaving the response untouched, for methods the
// protocol does not define so a host can chain another handler.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return false
	}

	start := time.Now()
	kind, code := "unknown", "ok"

	parsed, parseErr := r.parseCall(req)
	if parseErr != nil {
		code = string(parseErr.Code)
		r.writeError(w, nil, parseErr)
	} else {
		kind = parsed.kind.String()
		if rpcErr := r.dispatch(w, req, parsed); rpcErr != nil {
			code = string(rpcErr.Code)
		}
	}

	duration := time.Since(start)
	r.metrics.ObserveCall(kind, code, duration)
	r.logCall(req, kind, code, duration)
	return true
}

// parseCall extracts {path, kind, input} from the transport request.
func (r *Router) parseCall(req *http.Request) (*call, *common.Error) {
	if req.Method == http.MethodGet {
		q := req.URL.Query()
		pathParam := q.Get("path")
		if pathParam == "" {
			return nil, common.NewError(common.CodeParseError, "missing path parameter")
		}
		return &call{
			path:  SplitPath(pathParam),
			kind:  KindQuery,
			input: json.RawMessage(q.Get("input")),
		}, nil
	}

	body := req.Body
	if r.config.MaxBodySize > 0 {
		body = http.MaxBytesReader(nil, body, r.config.MaxBodySize)
	}
	defer body.Close()

	var envelope struct {
		Path  callPath        `json:"path"`
		Type  string          `json:"type"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return nil, common.NewError(common.CodeBadRequest, "request body too large")
		}
		return nil, common.NewError(common.CodeParseError, "malformed request body")
	}
	if len(envelope.Path) == 0 {
		return nil, common.NewError(common.CodeParseError, "missing path")
	}

	var kind Kind
	switch envelope.Type {
	case "query", "":
		kind = KindQuery
	case "mutation":
		kind = KindMutation
	default:
		return nil, common.Errorf(common.CodeParseError, "unknown call type %q", envelope.Type)
	}
	return &call{path: envelope.Path, kind: kind, input: envelope.Input}, nil
}

// dispatch resolves and executes one parsed call, writing the protocol
// envelope. It returns the structured error for observability, or nil on
// success.
func (r *Router) dispatch(w http.ResponseWriter, req *http.Request, parsed *call) *common.Error {
	proc, ok := Resolve(r.routes, parsed.path)
	if !ok {
		rpcErr := common.NewError(common.CodeNotFound, "no procedure at path")
		r.writeError(w, nil, rpcErr)
		return rpcErr
	}
	if proc.kind == KindSubscription {
		rpcErr := common.NewError(common.CodeMethodNotAllowed, "subscriptions require the WebSocket transport")
		r.writeError(w, nil, rpcErr)
		return rpcErr
	}
	if proc.kind != parsed.kind {
		rpcErr := common.Errorf(common.CodeMethodMismatch,
			"procedure is a %s, requested as %s", proc.kind, parsed.kind)
		r.writeError(w, nil, rpcErr)
		return rpcErr
	}

	ctx, rpcErr := r.runPipeline(req, proc)
	if rpcErr != nil {
		r.writeError(w, ctx, rpcErr)
		return rpcErr
	}

	input, rpcErr := r.validateInput(proc, parsed.input)
	if rpcErr != nil {
		r.writeError(w, ctx, rpcErr)
		return rpcErr
	}

	result, rpcErr := r.invoke(ctx, proc, input)
	if rpcErr != nil {
		r.writeError(w, ctx, rpcErr)
		return rpcErr
	}

	codec.ApplyHeaders(w.Header(), ctx.ResponseHeaders, true)
	if err := codec.WriteResult(w, result); err != nil {
		r.logger.Error("failed to encode result",
			zap.Error(err),
			zap.String("trace_id", ctx.TraceID()),
		)
	}
	return nil
}

// runPipeline builds the base context and executes the global steps
// followed by the procedure's own steps.
func (r *Router) runPipeline(req *http.Request, proc *Procedure) (*common.Context, *common.Error) {
	var app any
	if r.config.CreateContext != nil {
		app = r.config.CreateContext(req)
	}
	ctx := common.NewContext(req, app)

	res := middleware.Execute(middleware.Concat(r.steps, proc.steps), ctx)
	if res.Err != nil {
		// The failing pipeline's context carries any headers written by
		// steps that ran before the failure (CORS, rate limit).
		return ctx, res.Err
	}
	return res.Ctx, nil
}

// validateInput runs the procedure's schema, or decodes the raw JSON
// generically when no schema is attached.
func (r *Router) validateInput(proc *Procedure, raw json.RawMessage) (any, *common.Error) {
	if proc.schema != nil {
		value, err := proc.schema.Validate(raw)
		if err != nil {
			return nil, common.SanitizeValidation(err)
		}
		return value, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, common.NewError(common.CodeParseError, "malformed input")
	}
	return value, nil
}

// invoke runs the handler with panic recovery, transaction management
// for mutations, and error collapse: a structured *Error keeps its code,
// everything else is logged and becomes a generic INTERNAL_ERROR.
func (r *Router) invoke(ctx *common.Context, proc *Procedure, input any) (any, *common.Error) {
	callCtx := ctx
	var tx *middleware.Tx
	if proc.kind == KindMutation && r.config.Transactor != nil {
		var err error
		callCtx, tx, err = r.config.Transactor.Begin(ctx)
		if err != nil {
			return nil, common.NewError(common.CodeInternal, "internal server error")
		}
	}

	result, err := r.safeCall(proc.handler, callCtx, input)

	if tx != nil {
		if commitErr := tx.Resolve(err); commitErr != nil && err == nil {
			err = commitErr
		}
	}

	if err != nil {
		if rpcErr, ok := common.AsError(err); ok {
			return nil, rpcErr
		}
		r.logger.Error("handler failed",
			zap.Error(err),
			zap.String("trace_id", callCtx.TraceID()),
		)
		return nil, common.NewError(common.CodeInternal, "internal server error")
	}
	return result, nil
}

// safeCall invokes the handler, converting panics into errors so a
// misbehaving handler cannot take the process down.
func (r *Router) safeCall(handler Handler, ctx *common.Context, input any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic recovered in handler",
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
				zap.String("trace_id", ctx.TraceID()),
			)
			result, err = nil, fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, input)
}

// writeError writes the error envelope, applying any response headers
// middleware managed to set before the failure.
func (r *Router) writeError(w http.ResponseWriter, ctx *common.Context, rpcErr *common.Error) {
	if ctx != nil {
		codec.ApplyHeaders(w.Header(), ctx.ResponseHeaders, false)
	}
	if err := codec.WriteError(w, rpcErr); err != nil {
		r.logger.Error("failed to write error envelope", zap.Error(err))
	}
}

// logCall emits the completion log line for one call, with level chosen
// by outcome the way operators expect: server errors at Error, client
// errors and slow calls at Warn, everything else at Debug (or Info when
// configured).
func (r *Router) logCall(req *http.Request, kind, code string, duration time.Duration) {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("kind", kind),
		zap.String("code", code),
		zap.Duration("duration", duration),
	}
	switch {
	case code == string(common.CodeInternal):
		r.logger.Error("call failed", fields...)
	case code != "ok":
		r.logger.Warn("call rejected", fields...)
	case duration > time.Second:
		r.logger.Warn("slow call", fields...)
	default:
		logFunc := ternary.If(r.config.LogCallsAtInfo, r.logger.Info, r.logger.Debug)
		logFunc("call completed", fields...)
	}
}
