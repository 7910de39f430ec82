// Package retry implements bounded exponential backoff with jitter, honoring
// server-supplied retry hints and a configurable status classifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Jitter selects how backoff jitter is applied to a computed wait.
type Jitter int

const (
	// JitterFull scales the wait uniformly within [0.5*wait, 1.5*wait].
	JitterFull Jitter = iota
	// JitterNone applies the computed wait exactly.
	JitterNone
)

type (
	// StatusCoder is implemented by errors that carry an upstream HTTP-like
	// status code. Retry uses it to classify whether an error is retryable.
	StatusCoder interface {
		StatusCode() int
	}

	// RetryAfterer is implemented by errors that carry a server-supplied
	// retry-after hint, in seconds.
	RetryAfterer interface {
		RetryAfterSeconds() (float64, bool)
	}

	// Event describes a single retry decision, passed to Options.OnRetry.
	Event struct {
		Attempt int
		WaitMs  int64
		Err     error
	}

	// Options configures Do.
	Options struct {
		// MaxAttempts is the maximum number of attempts, including the first. Must
		// be >= 1; defaults to 3 when zero.
		MaxAttempts int
		// BaseMs is the base backoff in milliseconds. Defaults to 250 when zero.
		BaseMs int64
		// MaxMs caps a single computed wait in milliseconds. Defaults to 3000 when zero.
		MaxMs int64
		// JitterKind selects the jitter strategy. Defaults to JitterFull.
		JitterKind Jitter
		// MaxTotalMs bounds the total wall-clock time of Do, attempts included,
		// measured from its start: a retry whose wait would end past this bound
		// is not taken and the last error is returned. Zero means unbounded.
		MaxTotalMs int64
		// StatusRetry classifies whether a numeric status should be retried.
		// Defaults to retrying 408, 429, and 500-599.
		StatusRetry func(status int) bool
		// OnRetry is invoked immediately before each sleep.
		OnRetry func(Event)
	}
)

// ErrAborted is returned when Do is cancelled while waiting or executing.
var ErrAborted = errors.New("retry: aborted")

func defaultStatusRetry(status int) bool {
	if status == 408 || status == 429 {
		return true
	}
	return status >= 500 && status <= 599
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseMs <= 0 {
		o.BaseMs = 250
	}
	if o.MaxMs <= 0 {
		o.MaxMs = 3000
	}
	if o.StatusRetry == nil {
		o.StatusRetry = defaultStatusRetry
	}
	return o
}

// Do executes fn, retrying on failure per opts. The first success is
// returned immediately. On exhaustion the original error from the last
// attempt is returned unwrapped (not wrapped in a sentinel), so callers can
// errors.As against the underlying error type.
func Do[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()
	start := time.Now()

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= opts.MaxAttempts {
			return zero, err
		}

		var statusCoder StatusCoder
		if errors.As(err, &statusCoder) {
			if !opts.StatusRetry(statusCoder.StatusCode()) {
				return zero, err
			}
		}

		waitMs := computeWait(opts, attempt)
		suppressJitter := false
		var retryAfterer RetryAfterer
		if errors.As(err, &retryAfterer) {
			if secs, ok := retryAfterer.RetryAfterSeconds(); ok {
				if hintMs := int64(secs * 1000); hintMs > waitMs {
					waitMs = hintMs
				}
				suppressJitter = true
			}
		}
		if !suppressJitter {
			waitMs = applyJitter(opts.JitterKind, waitMs)
		}

		if opts.MaxTotalMs > 0 {
			elapsed := time.Since(start).Milliseconds()
			if elapsed+waitMs > opts.MaxTotalMs {
				return zero, err
			}
		}

		if opts.OnRetry != nil {
			opts.OnRetry(Event{Attempt: attempt, WaitMs: waitMs, Err: err})
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}
	}
}

func computeWait(opts Options, attempt int) int64 {
	wait := opts.BaseMs << uint(attempt-1)
	if wait > opts.MaxMs || wait <= 0 {
		wait = opts.MaxMs
	}
	return wait
}

func applyJitter(kind Jitter, waitMs int64) int64 {
	if kind == JitterNone {
		return waitMs
	}
	lo := float64(waitMs) * 0.5
	spread := float64(waitMs)
	return int64(lo + rand.Float64()*spread) //nolint:gosec // jitter doesn't need crypto rand
}
