package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/featherlabs/feather/llm"
)

// Target is one (provider, model) pair in a fan-out call.
type Target struct {
	Provider string
	Model    string
}

// AggregateError collects one error per failed target in a fully failed
// Race. A fully failed Fallback returns the last target's error instead.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("dispatcher: all %d targets failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// Fallback tries each target in order, sharing base's request/timeout/retry
// settings, and returns the first success. If every target fails, it
// returns the last error.
func (d *Dispatcher) Fallback(ctx context.Context, targets []Target, base Params) (llm.ChatResponse, error) {
	var lastErr error
	for _, t := range targets {
		params := base
		params.Provider = t.Provider
		params.Model = t.Model
		resp, err := d.Chat(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return llm.ChatResponse{}, lastErr
}

type raceResult struct {
	resp llm.ChatResponse
	err  error
}

// Race calls every target concurrently and resolves with the first success,
// cancelling the remaining in-flight calls once a winner is found. If every
// target fails, it returns an AggregateError. Cancelling ctx aborts all
// outstanding calls.
func (d *Dispatcher) Race(ctx context.Context, targets []Target, base Params) (llm.ChatResponse, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			params := base
			params.Provider = t.Provider
			params.Model = t.Model
			resp, err := d.Chat(raceCtx, params)
			results <- raceResult{resp: resp, err: err}
		}(t)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for r := range results {
		if r.err == nil {
			cancel() // stop the remaining calls; their ctx.Err() surfaces as their own failure
			return r.resp, nil
		}
		errs = append(errs, r.err)
	}
	return llm.ChatResponse{}, &AggregateError{Errors: errs}
}

// MapOptions configures Map's concurrency.
type MapOptions struct {
	// Concurrency bounds how many Fn calls run in parallel. Defaults to 4.
	Concurrency int
}

// Map runs fn(item) for every item in items, at most opts.Concurrency at a
// time, preserving index order in the returned slice. Cancelling ctx stops
// dispatching new items and the first resulting error is returned.
func Map[T any, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts MapOptions) ([]R, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]R, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, item := range items {
		if runCtx.Err() != nil {
			break
		}
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := fn(runCtx, item)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			results[i] = r
		}(i, item)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
