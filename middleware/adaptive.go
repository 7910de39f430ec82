package middleware

import (
	"golang.org/x/time/rate"

	"github.com/featherlabs/feather/llm"
)

// AdaptiveLimiter applies an AIMD-style adaptive token-per-minute budget on
// top of the dispatcher's fixed per-key token bucket. It estimates the
// token cost of a request, waits for capacity, and halves its effective
// budget whenever the downstream call reports rate limiting, recovering it
// gradually on success. It is optional middleware: the mandatory per-key
// token bucket in package ratelimit already enforces request-level fairness;
// this adds a token-volume-aware layer on top for providers billed and
// throttled by token count rather than request count.
type AdaptiveLimiter struct {
	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe   func(newTPM float64)
}

// NewAdaptiveLimiter constructs an AdaptiveLimiter with an initial and
// maximum tokens-per-minute budget.
func NewAdaptiveLimiter(initialTPM, maxTPM float64) *AdaptiveLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// OnBackoff/OnProbe register observers invoked whenever the effective budget
// changes, for publishing events.
func (l *AdaptiveLimiter) OnBackoff(fn func(newTPM float64)) { l.onBackoff = fn }
func (l *AdaptiveLimiter) OnProbe(fn func(newTPM float64))   { l.onProbe = fn }

// Handle implements Middleware: wait for token capacity, run next, then
// adjust the budget based on whether the call was rate-limited.
func (l *AdaptiveLimiter) Handle(ctx *Context, next Next) error {
	tokens := estimateTokens(ctx.Request)
	if err := l.limiter.WaitN(ctx.Context, tokens); err != nil {
		return err
	}
	err := next()
	l.observe(err)
	return err
}

// RateLimitedError is implemented by dispatcher errors that signal the
// provider itself rate-limited the request, distinct from this limiter's own
// local throttling.
type RateLimitedError interface {
	RateLimited() bool
}

func (l *AdaptiveLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if rl, ok := err.(RateLimitedError); ok && rl.RateLimited() {
		l.backoff()
	}
}

func (l *AdaptiveLimiter) backoff() {
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	if l.onBackoff != nil {
		l.onBackoff(newTPM)
	}
}

func (l *AdaptiveLimiter) probe() {
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	if l.onProbe != nil {
		l.onProbe(newTPM)
	}
}

// estimateTokens is a cheap character-count heuristic, with a fixed buffer
// for system prompts and provider framing.
func estimateTokens(req llm.ChatRequest) int {
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
