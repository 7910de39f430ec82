package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemLimiter_BlocksBeyondLimit(t *testing.T) {
	l := NewInMemLimiter()
	rule := Rule{Name: "r", Scope: ScopeSession, Limit: 2, WindowMs: 10000}
	req := Request{SessionID: "s1"}

	require.NoError(t, l.Consume(context.Background(), rule, req))
	require.NoError(t, l.Consume(context.Background(), rule, req))
	err := l.Consume(context.Background(), rule, req)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestInMemLimiter_ResetsAfterWindow(t *testing.T) {
	l := NewInMemLimiter()
	rule := Rule{Name: "r", Scope: ScopeSession, Limit: 1, WindowMs: 10}
	req := Request{SessionID: "s1"}

	require.NoError(t, l.Consume(context.Background(), rule, req))
	require.ErrorIs(t, l.Consume(context.Background(), rule, req), ErrQuotaExceeded)

	time.Sleep(15 * time.Millisecond)
	assert.NoError(t, l.Consume(context.Background(), rule, req))
}

func TestInMemLimiter_UnresolvableKeyNeverBlocks(t *testing.T) {
	l := NewInMemLimiter()
	rule := Rule{Name: "r", Scope: ScopeUser, Limit: 0, WindowMs: 10000}
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Consume(context.Background(), rule, Request{}))
	}
}
