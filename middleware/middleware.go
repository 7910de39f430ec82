// Package middleware implements the dispatcher's onion-model request
// pipeline: an ordered stack of layers, each wrapping the next, with
// post-next code running in LIFO order around a terminal call.
package middleware

import (
	"context"
	"time"

	"github.com/featherlabs/feather/llm"
)

// Context carries per-call state through the middleware stack. Layers read
// and mutate it in place; Response is the short-circuit/terminal result.
type Context struct {
	context.Context

	Provider  string
	Model     string
	Request   llm.ChatRequest
	Response  llm.ChatResponse
	StartedAt time.Time
	RequestID string
}

// Next invokes the remainder of the stack (or the terminal, at the end).
type Next func() error

// Middleware is one onion layer. It must call next exactly once, or skip it
// to short-circuit — in which case neither the later layers nor the terminal
// run, and ctx.Response holds whatever the layer itself populated.
type Middleware interface {
	Handle(ctx *Context, next Next) error
}

// Func adapts a plain function to Middleware, for layers with no Finalizer.
type Func func(ctx *Context, next Next) error

// Handle implements Middleware.
func (f Func) Handle(ctx *Context, next Next) error { return f(ctx, next) }

// Finalizer lets a middleware register cleanup that runs when next was never
// called, without implementing full onion nesting. Errors from Finally are
// swallowed.
type Finalizer interface {
	Finally(ctx *Context, err error)
}

// Run executes stack in order around terminal, per spec: for stack [A, B]
// the sequence is A-pre, B-pre, terminal, B-post, A-post.
func Run(stack []Middleware, ctx *Context, terminal Next) error {
	return run(stack, 0, ctx, terminal)
}

func run(stack []Middleware, i int, ctx *Context, terminal Next) error {
	if i >= len(stack) {
		return terminal()
	}
	layer := stack[i]
	called := false
	next := func() error {
		called = true
		return run(stack, i+1, ctx, terminal)
	}
	err := layer.Handle(ctx, next)
	if !called {
		if f, ok := layer.(Finalizer); ok {
			safeFinally(f, ctx, err)
		}
	}
	return err
}

func safeFinally(f Finalizer, ctx *Context, err error) {
	defer func() { _ = recover() }()
	f.Finally(ctx, err)
}
