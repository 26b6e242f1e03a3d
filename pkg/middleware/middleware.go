// Package middleware implements the context-transforming middleware
// pipeline shared by RPC procedures and server functions, along with the
// built-in steps (client IP, trace ID, auth, CORS, cache control, rate
// limiting, transactions).
package middleware

import (
	"github.com/ereojs/ereo/pkg/common"
)

// Result is the outcome of a middleware step or a whole pipeline: either
// a (possibly extended) context, or a structured error. Exactly one of
// the two fields is set.
type Result struct {
	Ctx *common.Context
	Err *common.Error
}

// OK wraps a context as a successful result.
func OK(ctx *common.Context) Result { return Result{Ctx: ctx} }

// Fail wraps a structured error as a short-circuiting result.
func Fail(err *common.Error) Result { return Result{Err: err} }

// Next is the continuation handed to a step. Calling it with an extended
// context proceeds down the chain; returning Fail without calling it
// aborts the chain immediately.
type Next func(ctx *common.Context) Result

// Step is a single middleware unit. A step may extend the context and
// call next, or deny the call by returning Fail. Steps cannot see or
// alter the steps that run after them, which keeps auth, logging, and
// validation steps independently reasonable.
type Step interface {
	Invoke(ctx *common.Context, next Next) Result
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(ctx *common.Context, next Next) Result

// Invoke implements Step.
func (f StepFunc) Invoke(ctx *common.Context, next Next) Result { return f(ctx, next) }

// Execute runs steps strictly in list order against the initial context.
// It is an index-driven trampoline rather than a tower of nested
// closures, keeping stack depth and context ownership explicit. An empty
// list yields OK(initial) unchanged. If step k fails, steps k+1..n never
// run and the pipeline result is exactly that failure. Only calling next
// proceeds: a step that returns OK without invoking its continuation
// ends the pipeline successfully with whatever context it returned.
func Execute(steps []Step, initial *common.Context) Result {
	current := initial
	for _, step := range steps {
		proceeded := false
		res := step.Invoke(current, func(ctx *common.Context) Result {
			proceeded = true
			return OK(ctx)
		})
		if res.Err != nil {
			return res
		}
		if res.Ctx != nil {
			current = res.Ctx
		}
		if !proceeded {
			return OK(current)
		}
	}
	return OK(current)
}

// Concat combines step lists into a single flat list, left to right.
func Concat(lists ...[]Step) []Step {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]Step, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
