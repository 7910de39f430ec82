package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/llm"
)

type rateLimitedErr struct{}

func (rateLimitedErr) Error() string    { return "rate limited" }
func (rateLimitedErr) RateLimited() bool { return true }

func TestAdaptiveLimiter_BackoffOnRateLimit(t *testing.T) {
	l := NewAdaptiveLimiter(1000, 2000)
	var seen float64
	l.OnBackoff(func(tpm float64) { seen = tpm })

	ctx := &Context{Context: context.Background(), Request: llm.ChatRequest{Messages: []llm.Message{{Content: "hi"}}}}
	err := l.Handle(ctx, func() error { return rateLimitedErr{} })
	require.Error(t, err)
	assert.Equal(t, 500.0, seen)
}

func TestAdaptiveLimiter_ProbeOnSuccess(t *testing.T) {
	l := NewAdaptiveLimiter(1000, 2000)
	l.currentTPM = 500 // simulate a prior backoff
	l.limiter.SetLimit(1)
	var seen float64
	l.OnProbe(func(tpm float64) { seen = tpm })

	ctx := &Context{Context: context.Background(), Request: llm.ChatRequest{Messages: []llm.Message{{Content: "hi"}}}}
	err := l.Handle(ctx, func() error { return nil })
	require.NoError(t, err)
	assert.Greater(t, seen, 500.0)
}

func TestAdaptiveLimiter_IgnoresUnrelatedErrors(t *testing.T) {
	l := NewAdaptiveLimiter(1000, 2000)
	called := false
	l.OnBackoff(func(float64) { called = true })

	ctx := &Context{Context: context.Background(), Request: llm.ChatRequest{Messages: []llm.Message{{Content: "hi"}}}}
	err := l.Handle(ctx, func() error { return errors.New("boom") })
	require.Error(t, err)
	assert.False(t, called)
}
