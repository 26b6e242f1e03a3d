// Package router implements the RPC procedure model: typed leaves
// (query, mutation, subscription) organized into a recursive namespace
// tree, with an HTTP dispatcher and a WebSocket subscription engine on
// top.
package router

import (
	"context"

	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/middleware"
)

// Kind is the kind of a procedure leaf.
type Kind int

const (
	KindQuery Kind = iota
	KindMutation
	KindSubscription
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	case KindSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Handler executes a query or mutation. The input is the validated value
// produced by the procedure's schema, or the decoded raw JSON when no
// schema is attached.
type Handler func(ctx *common.Context, input any) (any, error)

// StreamHandler produces a subscription's values by sending them into
// the sink. Returning nil completes the stream; returning an error emits
// an error frame. Cancellation is cooperative: Sink.Send reports false
// once the subscription is cancelled, and handlers must observe either
// that or ctx.Done between values. A handler that never yields can delay
// shutdown; that is a documented property of the model, not a bug to
// paper over with preemption.
type StreamHandler func(ctx context.Context, call *common.Context, input any, sink *Sink) error

// Procedure is an immutable leaf of the route tree.
type Procedure struct {
	kind    Kind
	steps   []middleware.Step
	schema  common.Validator
	handler Handler
	stream  StreamHandler
}

// Kind returns the procedure's kind.
func (p *Procedure) Kind() Kind { return p.kind }

func (p *Procedure) isNode() {}

// Builder assembles a procedure. Builders are values: Use and Input
// return a new builder and never mutate the receiver, so a configured
// base builder can be shared across many leaves safely.
type Builder struct {
	steps  []middleware.Step
	schema common.Validator
}

// NewProcedure returns an empty builder.
func NewProcedure() Builder {
	return Builder{}
}

// Use returns a new builder with the given steps appended.
func (b Builder) Use(steps ...middleware.Step) Builder {
	next := b
	next.steps = make([]middleware.Step, 0, len(b.steps)+len(steps))
	next.steps = append(next.steps, b.steps...)
	next.steps = append(next.steps, steps...)
	return next
}

// Input returns a new builder with the input schema set.
func (b Builder) Input(schema common.Validator) Builder {
	next := b
	next.schema = schema
	return next
}

// Query finalizes the builder into a query procedure.
func (b Builder) Query(handler Handler) *Procedure {
	return &Procedure{kind: KindQuery, steps: b.steps, schema: b.schema, handler: handler}
}

// Mutation finalizes the builder into a mutation procedure.
func (b Builder) Mutation(handler Handler) *Procedure {
	return &Procedure{kind: KindMutation, steps: b.steps, schema: b.schema, handler: handler}
}

// Subscription finalizes the builder into a subscription procedure.
// Subscriptions are reachable over WebSocket only.
func (b Builder) Subscription(handler StreamHandler) *Procedure {
	return &Procedure{kind: KindSubscription, steps: b.steps, schema: b.schema, stream: handler}
}
