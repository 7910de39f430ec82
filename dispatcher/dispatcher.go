// Package dispatcher composes rate limiting, circuit breaking, middleware,
// and retry around per-provider chat calls, and offers fallback/race/map
// fan-out over multiple provider/model targets.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/pulse/rmap"

	"github.com/featherlabs/feather/breaker"
	"github.com/featherlabs/feather/events"
	"github.com/featherlabs/feather/llm"
	"github.com/featherlabs/feather/middleware"
	"github.com/featherlabs/feather/provider"
	"github.com/featherlabs/feather/ratelimit"
	"github.com/featherlabs/feather/retry"
)

// Backend issues chat (and optionally streaming) calls to a single
// provider's transport. Concrete providers (Anthropic, OpenAI, Bedrock) are
// thin adapters implementing this at the contract boundary only.
type Backend interface {
	Key() string
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// StreamBackend is implemented by a Backend that also supports streaming.
type StreamBackend interface {
	Backend
	Stream(ctx context.Context, req llm.ChatRequest) (Stream, error)
}

// Chunk is one piece of a streamed response.
type Chunk struct {
	ContentDelta string
}

// Stream is a lazy sequence of Chunks, terminated by io.EOF from Next.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// NoProviderError reports that no backend matched a direct provider lookup
// or a registry Choose call.
type NoProviderError struct {
	Provider string
}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf("dispatcher: no provider %q registered", e.Provider)
}

// CircuitOpenError reports that the breaker for a provider is open.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("dispatcher: circuit open for provider %q", e.Provider)
}

// Dispatcher composes selection, rate limiting, circuit breaking,
// middleware, and retry around a Chat call.
type Dispatcher struct {
	registry *provider.Registry
	backends map[string]Backend

	limiter *ratelimit.Limiter

	breakersMu   sync.Mutex
	breakers     map[string]*breaker.Breaker
	breakerOpts  breaker.Options

	middlewares []middleware.Middleware
	retryOpts   retry.Options
	timeout     time.Duration

	bus *events.Bus
}

// Options configures a Dispatcher.
type Options struct {
	Policy         provider.Policy
	Limiter        *ratelimit.Limiter
	BreakerOptions breaker.Options
	Middlewares    []middleware.Middleware
	RetryOptions   retry.Options
	// DefaultTimeout bounds a single Chat call absent an explicit per-call
	// timeout. Defaults to 60s.
	DefaultTimeout time.Duration
	Bus            *events.Bus
}

// New constructs a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(nil)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Dispatcher{
		registry:    provider.New(opts.Policy),
		backends:    make(map[string]Backend),
		limiter:     opts.Limiter,
		breakers:    make(map[string]*breaker.Breaker),
		breakerOpts: opts.BreakerOptions,
		middlewares: opts.Middlewares,
		retryOpts:   opts.RetryOptions,
		timeout:     opts.DefaultTimeout,
		bus:         opts.Bus,
	}
}

// Bus returns the dispatcher's event bus for external subscription.
func (d *Dispatcher) Bus() *events.Bus { return d.bus }

// WireClusterLimit attaches a cluster-shared rate limit for providerID/model
// backed by a Pulse replicated map, so every dispatcher replica in a process
// group converges on the same RPS budget for that provider/model pair
// instead of each replica enforcing its own independent local limit. A nil
// m is a no-op (single-process deployments never need this).
func (d *Dispatcher) WireClusterLimit(ctx context.Context, m *rmap.Map, providerID, model string, initial ratelimit.Limit) *ratelimit.ClusterCoordinator {
	return ratelimit.NewClusterCoordinator(ctx, d.limiter, m, providerID+":"+model, initial)
}

// Add registers a provider entry, making it available both for direct
// provider+model calls and for registry-based selection.
func (d *Dispatcher) Add(entry provider.Entry, backend Backend) {
	entry.Backend = backend
	d.registry.Add(entry)
	d.backends[entry.Key] = backend
}

func (d *Dispatcher) breakerFor(providerID string) *breaker.Breaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	b, ok := d.breakers[providerID]
	if !ok {
		b = breaker.New(d.breakerOpts)
		pid := providerID
		b.OnStateChange(func(_, to breaker.State) {
			typ := events.TypeBreakerOpen
			if to == breaker.Closed {
				typ = events.TypeBreakerClose
			}
			d.bus.Publish(events.New(typ, "", "", map[string]any{"provider": pid}))
		})
		d.breakers[providerID] = b
	}
	return b
}

// Params is a single Chat call's inputs.
type Params struct {
	Provider  string
	Model     string
	Request   llm.ChatRequest
	TimeoutMs int64
	Retry     *retry.Options
}

func (d *Dispatcher) resolve(params Params) (providerID, model string, backend Backend, err error) {
	if params.Provider != "" && params.Model != "" {
		b, ok := d.backends[params.Provider]
		if !ok {
			return "", "", nil, &NoProviderError{Provider: params.Provider}
		}
		return params.Provider, params.Model, b, nil
	}
	sel, err := d.registry.Choose(params.Model)
	if err != nil {
		return "", "", nil, err
	}
	b, ok := d.backends[sel.Entry.Key]
	if !ok {
		return "", "", nil, &NoProviderError{Provider: sel.Entry.Key}
	}
	return sel.Entry.Key, sel.Model, b, nil
}

// Chat performs a single provider call through the full pipeline: select,
// breaker gate, timeout composition, rate limit, middleware (with a
// retry-wrapped terminal), breaker feedback, and event publication.
func (d *Dispatcher) Chat(ctx context.Context, params Params) (llm.ChatResponse, error) {
	if err := params.Request.Validate(); err != nil {
		return llm.ChatResponse{}, err
	}

	providerID, model, backend, err := d.resolve(params)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	brk := d.breakerFor(providerID)
	if !brk.CanPass() {
		return llm.ChatResponse{}, &CircuitOpenError{Provider: providerID}
	}

	timeout := d.timeout
	if params.TimeoutMs > 0 {
		timeout = time.Duration(params.TimeoutMs) * time.Millisecond
	}
	innerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.limiter.Take(innerCtx, providerID+":"+model); err != nil {
		return llm.ChatResponse{}, err
	}

	retryOpts := d.retryOpts
	if params.Retry != nil {
		retryOpts = *params.Retry
	}

	mctx := &middleware.Context{
		Context:   innerCtx,
		Provider:  providerID,
		Model:     model,
		Request:   params.Request,
		StartedAt: time.Now(),
		RequestID: uuid.NewString(),
	}

	retryOpts.OnRetry = func(ev retry.Event) {
		d.bus.Publish(events.New(events.TypeCallRetry, "", "", map[string]any{
			"provider": providerID, "model": model, "requestId": mctx.RequestID,
			"attempt": ev.Attempt, "waitMs": ev.WaitMs, "error": ev.Err.Error(),
		}))
	}

	d.bus.Publish(events.New(events.TypeCallStart, "", "", map[string]any{
		"provider": providerID, "model": model, "requestId": mctx.RequestID,
	}))

	terminal := func() error {
		resp, err := retry.Do(mctx.Context, retryOpts, func(c context.Context) (llm.ChatResponse, error) {
			return backend.Chat(c, mctx.Request)
		})
		if err != nil {
			return err
		}
		mctx.Response = resp
		return nil
	}

	err = middleware.Run(d.middlewares, mctx, terminal)
	if err != nil {
		brk.Fail(err)
		d.bus.Publish(events.New(events.TypeCallError, "", "", map[string]any{
			"provider": providerID, "model": model, "requestId": mctx.RequestID, "error": err.Error(),
		}))
		return llm.ChatResponse{}, err
	}

	brk.Success()
	d.bus.Publish(events.New(events.TypeCallSuccess, "", "", map[string]any{
		"provider": providerID, "model": model, "requestId": mctx.RequestID, "costUSD": mctx.Response.CostUSD,
	}))
	return mctx.Response, nil
}
