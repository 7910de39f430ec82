// Package breaker implements a rolling-window circuit breaker with
// closed/open/half-open states, guarding a single upstream slot.
package breaker

import (
	"sync"
	"time"
)

// Classification distinguishes errors that should trip the breaker (Soft)
// from client-caused errors that must not (Hard).
type Classification int

const (
	// Soft errors (server/transport failures) count against the breaker and
	// are eligible for retry.
	Soft Classification = iota
	// Hard errors (client-caused, e.g. 4xx except 408/429) are ignored by
	// Fail: they are neither recorded nor counted against the breaker.
	Hard
)

// State is the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Classifier maps an error to a Classification.
type Classifier func(err error) Classification

// Options configures a Breaker.
type Options struct {
	// Threshold is the number of soft failures within WindowMs that trips the
	// breaker. Defaults to 5.
	Threshold int
	// CooldownMs is how long the breaker stays open before probing. Defaults
	// to 5000.
	CooldownMs int64
	// WindowMs bounds the rolling failure window. Defaults to 10000.
	WindowMs int64
	// Classify classifies an error as Soft or Hard. Defaults to classifying
	// everything as Soft.
	Classify Classifier
}

// OnStateChange is invoked whenever the breaker transitions state. Intended
// for the dispatcher to publish breaker.open / breaker.close events.
type OnStateChange func(from, to State)

// Breaker guards a single upstream slot with a rolling-window circuit
// breaker. A Breaker must not be copied after first use.
type Breaker struct {
	mu sync.Mutex

	threshold  int
	cooldownMs int64
	windowMs   int64
	classify   Classifier

	state      State
	window     []int64 // failure timestamps, epoch ms, ascending
	nextTry    int64    // epoch ms, valid when state == Open
	onChange   OnStateChange
}

// New constructs a Breaker in the closed state.
func New(opts Options) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.CooldownMs <= 0 {
		opts.CooldownMs = 5000
	}
	if opts.WindowMs <= 0 {
		opts.WindowMs = 10000
	}
	if opts.Classify == nil {
		opts.Classify = func(error) Classification { return Soft }
	}
	return &Breaker{
		threshold:  opts.Threshold,
		cooldownMs: opts.CooldownMs,
		windowMs:   opts.WindowMs,
		classify:   opts.Classify,
		state:      Closed,
	}
}

// OnStateChange registers a callback invoked on every state transition.
func (b *Breaker) OnStateChange(fn OnStateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// State returns the current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CanPass reports whether a call may proceed. In the open state this also
// performs the open -> half-open transition once the cooldown elapses.
func (b *Breaker) CanPass() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := nowMs()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if now >= b.nextTry {
			b.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// Success records a successful call. In half-open, this closes the breaker
// and clears its failure window.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.window = nil
		b.transition(Closed)
	}
}

// Fail records a failed call. Hard-classified errors never count against the
// breaker. In half-open, any soft failure re-opens the breaker immediately
// with a fresh cooldown.
func (b *Breaker) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.classify(err) == Hard {
		return
	}

	now := nowMs()
	if b.state == HalfOpen {
		b.window = []int64{now}
		b.nextTry = now + b.cooldownMs
		b.transition(Open)
		return
	}

	b.window = append(b.window, now)
	b.pruneLocked(now)
	if len(b.window) >= b.threshold {
		b.nextTry = now + b.cooldownMs
		b.transition(Open)
	}
}

func (b *Breaker) pruneLocked(now int64) {
	cutoff := now - b.windowMs
	i := 0
	for i < len(b.window) && b.window[i] < cutoff {
		i++
	}
	b.window = b.window[i:]
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil && from != to {
		cb := b.onChange
		// Invoke outside the lock window is not possible without restructuring;
		// callbacks must be fast and non-blocking, matching the event bus contract.
		cb(from, to)
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
