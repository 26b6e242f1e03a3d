package serverfn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/middleware"
	"go.uber.org/zap"
)

// Handler is the body of a server function.
type Handler func(ctx *common.Context, input any) (any, error)

// RegistryConfig wires the collaborators a registry needs. Every
// field is optional.
type RegistryConfig struct {
	Logger        *zap.Logger
	Limiter       common.RateLimiter
	CreateContext common.CreateContextFunc
	// GetUser is the default user resolver for compiled auth steps.
	GetUser common.GetUserFunc
	// Global runs ahead of everything on the HTTP path and on direct
	// calls that carry an explicit request.
	Global []middleware.Step
	// Defaults is a config layer compiled once and run after Global.
	Defaults Config
	// BasePath is the URL prefix functions are served under.
	// Defaults to /_server-fn.
	BasePath string
	// CSRFHeader names the marker header required on POST requests.
	// Defaults to X-Csrf-Protection.
	CSRFHeader string
	// DisableCSRF turns the marker check off.
	DisableCSRF bool
	// MaxBodySize caps request bodies in bytes. Defaults to 1 MiB.
	MaxBodySize int64
}

// Registry maps function ids to registered functions. Registration
// fails on a duplicate id, so ids stay globally unique per process.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]*Fn

	logger       *zap.Logger
	limiter      common.RateLimiter
	create       common.CreateContextFunc
	getUser      common.GetUserFunc
	global       []middleware.Step
	defaults     Config
	defaultSteps []middleware.Step
	basePath     string
	csrfHeader   string
	disableCSRF  bool
	maxBodySize  int64
}

// NewRegistry builds a registry from config, filling defaults.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.BasePath == "" {
		config.BasePath = "/_server-fn"
	}
	if config.CSRFHeader == "" {
		config.CSRFHeader = "X-Csrf-Protection"
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	r := &Registry{
		fns:         make(map[string]*Fn),
		logger:      config.Logger.Named("serverfn"),
		limiter:     config.Limiter,
		create:      config.CreateContext,
		getUser:     config.GetUser,
		global:      config.Global,
		defaults:    config.Defaults,
		basePath:    config.BasePath,
		csrfHeader:  config.CSRFHeader,
		disableCSRF: config.DisableCSRF,
		maxBodySize: config.MaxBodySize,
	}
	if _, limited := config.Defaults.RateLimit.Get(); limited && r.limiter == nil {
		panic("serverfn: RegistryConfig.Defaults declares a rate limit but no Limiter is set")
	}
	r.defaultSteps = r.compile(config.Defaults)
	return r
}

// Default is the process-wide registry. Applications that need
// isolation, tests included, build their own with NewRegistry.
var Default = NewRegistry(RegistryConfig{})

// Register adds a function to the Default registry.
func Register(spec FnSpec) (*Fn, error) { return Default.Register(spec) }

// MustRegister adds a function to the Default registry, panicking on
// error.
func MustRegister(spec FnSpec) *Fn { return Default.MustRegister(spec) }

// FnSpec describes one function at registration time.
type FnSpec struct {
	ID      string
	Handler Handler
	Config  Config
	// Schema validates the raw input before any middleware runs.
	Schema common.Validator
	// AllowPublic removes an inherited auth requirement. Shorthand
	// for Config.Auth = Remove.
	AllowPublic bool
}

// Fn is a registered server function. Invoke it in-process with Call,
// or let the HTTP handler dispatch to it by id.
type Fn struct {
	id       string
	handler  Handler
	schema   common.Validator
	config   Config
	steps    []middleware.Step
	registry *Registry
}

// ID reports the function's registered id.
func (f *Fn) ID() string { return f.id }

// Register adds a function under its id. It fails if the id is empty,
// the handler is nil, or the id is already taken.
func (r *Registry) Register(spec FnSpec) (*Fn, error) {
	return r.register(Config{}, spec)
}

func (r *Registry) register(block Config, spec FnSpec) (*Fn, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("server function id must not be empty")
	}
	if spec.Handler == nil {
		return nil, fmt.Errorf("server function %q has no handler", spec.ID)
	}
	cfg := spec.Config
	if spec.AllowPublic {
		cfg.Auth = Remove[common.GetUserFunc]()
	}
	cfg = mergeConfig(block, cfg)
	if _, limited := cfg.RateLimit.Get(); limited && r.limiter == nil {
		return nil, fmt.Errorf("server function %q declares a rate limit but the registry has no limiter", spec.ID)
	}

	fn := &Fn{
		id:       spec.ID,
		handler:  spec.Handler,
		schema:   spec.Schema,
		config:   cfg,
		steps:    r.compile(cfg),
		registry: r,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[spec.ID]; exists {
		return nil, fmt.Errorf("server function %q already registered", spec.ID)
	}
	r.fns[spec.ID] = fn
	r.logger.Debug("server function registered", zap.String("id", spec.ID))
	return fn, nil
}

// MustRegister is Register that panics on error, for package-level
// var registration.
func (r *Registry) MustRegister(spec FnSpec) *Fn {
	fn, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return fn
}

// BasePath reports the URL prefix functions are served under.
func (r *Registry) BasePath() string { return r.basePath }

// Lookup returns the function registered under id.
func (r *Registry) Lookup(id string) (*Fn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[id]
	return fn, ok
}

// Block groups registrations under a shared config. Function configs
// layer over the block's; see mergeConfig.
type Block struct {
	registry *Registry
	config   Config
}

// Block opens a registration group with a shared config.
func (r *Registry) Block(config Config) *Block {
	return &Block{registry: r, config: config}
}

// Register adds a function with the block config layered beneath its
// own.
func (b *Block) Register(spec FnSpec) (*Fn, error) {
	return b.registry.register(b.config, spec)
}

// MustRegister is Register that panics on error.
func (b *Block) MustRegister(spec FnSpec) *Fn {
	fn, err := b.Register(spec)
	if err != nil {
		panic(err)
	}
	return fn
}

// Call invokes the function in-process with only its own middleware.
// Input validation runs first, then the compiled chain, then the
// handler.
func (f *Fn) Call(ctx context.Context, input any) (any, error) {
	req := placeholderRequest().WithContext(ctx)
	result, _, err := f.dispatch(req, input, false)
	return result, err
}

// CallWithRequest invokes the function with the registry's global and
// default layers ahead of its own middleware, the same pipeline an
// HTTP request gets. Use it when an in-process call should honor
// auth, rate limits, and the rest of the shared policy.
func (f *Fn) CallWithRequest(req *http.Request, input any) (any, error) {
	result, _, err := f.dispatch(req, input, true)
	return result, err
}

// dispatch validates input, runs the selected middleware layers, and
// calls the handler. The returned headers are whatever the chain
// wrote, for the HTTP path to copy out.
func (f *Fn) dispatch(req *http.Request, input any, full bool) (any, http.Header, error) {
	validated, err := f.validate(input)
	if err != nil {
		return nil, nil, err
	}

	var app any
	if f.registry.create != nil {
		app = f.registry.create(req)
	}
	callCtx := common.NewContext(req, app)

	steps := f.steps
	if full {
		steps = middleware.Concat(f.registry.global, f.registry.defaultSteps, f.steps)
	}
	res := middleware.Execute(steps, callCtx)
	if res.Err != nil {
		return nil, callCtx.ResponseHeaders, res.Err
	}

	result, err := f.handler(res.Ctx, validated)
	if err != nil {
		return nil, res.Ctx.ResponseHeaders, err
	}
	return result, res.Ctx.ResponseHeaders, nil
}

// validate runs the schema over the input, round-tripping through
// JSON so direct calls and decoded HTTP bodies validate identically.
func (f *Fn) validate(input any) (any, error) {
	if f.schema == nil {
		return input, nil
	}
	var data []byte
	switch v := input.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, common.Errorf(common.CodeValidationError, "input is not serializable: %v", err)
		}
		data = encoded
	}
	validated, err := f.schema.Validate(data)
	if err != nil {
		return nil, common.SanitizeValidation(err)
	}
	return validated, nil
}

// placeholderRequest backs direct calls that have no transport
// request, so middleware that reads headers sees an empty set instead
// of a nil request.
func placeholderRequest() *http.Request {
	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	return req
}
