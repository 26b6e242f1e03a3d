// Package serverfn implements a process-wide registry of server
// functions: named handlers that dispatch over HTTP from a client
// proxy and run in-process on the server, sharing the middleware
// model of the RPC router. Middleware for a function is not listed by
// hand; it is compiled from a declarative Config in a fixed order.
package serverfn

import (
	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/middleware"
)

type optionState uint8

const (
	optionInherit optionState = iota
	optionUse
	optionRemove
)

// Option is a tri-state config field. The zero value inherits the
// enclosing block's setting; Use replaces it; Remove clears an
// inherited setting, for example to make one function public inside a
// block that requires auth.
type Option[T any] struct {
	state optionState
	value T
}

// Use returns an Option carrying an explicit value.
func Use[T any](value T) Option[T] {
	return Option[T]{state: optionUse, value: value}
}

// Remove returns an Option that clears an inherited value.
func Remove[T any]() Option[T] {
	return Option[T]{state: optionRemove}
}

// Get reports the effective value and whether one is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.state == optionUse
}

// set reports whether the option was written at all, by Use or Remove.
func (o Option[T]) set() bool {
	return o.state != optionInherit
}

// merge resolves an override against an inherited option. Overrides
// replace, they never combine.
func merge[T any](inherited, override Option[T]) Option[T] {
	if override.set() {
		return override
	}
	return inherited
}

// Config declares the middleware of a function or block. Each field
// compiles to at most one step; steps always run in the order CORS,
// rate limit, auth, cache, then Middleware. CORS runs first so its
// headers survive a later denial, rate limiting runs before auth so
// abuse is rejected before the cost of resolving a user, and cache
// headers are written only after auth approves.
type Config struct {
	CORS      Option[middleware.CORSOptions]
	RateLimit Option[middleware.RateLimitConfig]
	// Auth requires a resolved user. A nil resolver falls back to the
	// registry's GetUser.
	Auth  Option[common.GetUserFunc]
	Cache Option[middleware.CacheOptions]
	// Middleware runs after the compiled steps. Block middleware
	// concatenates ahead of function middleware rather than being
	// replaced by it.
	Middleware []middleware.Step
}

// mergeConfig layers a function config over a block config. Declared
// fields replace, middleware lists concatenate block first.
func mergeConfig(block, fn Config) Config {
	out := Config{
		CORS:      merge(block.CORS, fn.CORS),
		RateLimit: merge(block.RateLimit, fn.RateLimit),
		Auth:      merge(block.Auth, fn.Auth),
		Cache:     merge(block.Cache, fn.Cache),
	}
	out.Middleware = append(append([]middleware.Step(nil), block.Middleware...), fn.Middleware...)
	return out
}

// compile lowers a resolved Config to an ordered step list.
func (r *Registry) compile(cfg Config) []middleware.Step {
	steps := make([]middleware.Step, 0, 4+len(cfg.Middleware))
	if opts, ok := cfg.CORS.Get(); ok {
		steps = append(steps, middleware.CORS(opts))
	}
	if rl, ok := cfg.RateLimit.Get(); ok {
		steps = append(steps, middleware.RateLimit(rl, r.limiter, r.logger))
	}
	if getUser, ok := cfg.Auth.Get(); ok {
		if getUser == nil {
			getUser = r.getUser
		}
		steps = append(steps, middleware.Auth(getUser, r.logger))
	}
	if cacheOpts, ok := cfg.Cache.Get(); ok {
		steps = append(steps, middleware.CacheControl(cacheOpts))
	}
	return append(steps, cfg.Middleware...)
}
