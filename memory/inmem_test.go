package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/llm"
)

func TestAppend_EvictsOldestBeyondMaxTurns(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 3))
	}
	turns, err := s.GetContext(ctx, "s1", ContextOptions{})
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}

func TestGetContext_MostRecentFirst(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "first"}, 0))
	require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "second"}, 0))

	turns, err := s.GetContext(ctx, "s1", ContextOptions{})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Content)
	assert.Equal(t, "first", turns[1].Content)
}

func TestGetContext_TokenBudgetTruncatesOverflow(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "one two three four five six seven eight", Tokens: 8}, 0))

	turns, err := s.GetContext(ctx, "s1", ContextOptions{MaxTokens: 3})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0].Content, "…")
}

func TestGetContext_MaxTurnsCapsCount(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 0))
	}
	turns, err := s.GetContext(ctx, "s1", ContextOptions{MaxTurns: 2})
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestSummarize_FoldsOlderPrefix(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 0))
	}
	require.NoError(t, s.Summarize(ctx, "s1", 2, nil))

	turns, err := s.GetContext(ctx, "s1", ContextOptions{})
	require.NoError(t, err)
	require.Len(t, turns, 3) // 2 recent + 1 summary
	assert.Equal(t, llm.Role("summary"), turns[2].Role)
}

func TestTrim_RetainTurns(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 0))
	}
	require.NoError(t, s.Trim(ctx, "s1", TrimOptions{RetainTurns: 2}))
	turns, err := s.GetContext(ctx, "s1", ContextOptions{})
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestTrim_ZeroDeletesSession(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 0))
	require.NoError(t, s.Trim(ctx, "s1", TrimOptions{RetainTurns: 0}))
	turns, err := s.GetContext(ctx, "s1", ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppend_ConcurrentSameSessionSerialized(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			_ = s.Append(ctx, "s1", Turn{Role: llm.RoleUser, Content: "x"}, 0)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	turns, err := s.GetContext(ctx, "s1", ContextOptions{MaxTurns: 1000})
	require.NoError(t, err)
	assert.Len(t, turns, 50)
}
