package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend string

func (s stubBackend) Key() string { return string(s) }

func TestChoose_NoMatch(t *testing.T) {
	r := New(First)
	r.Add(Entry{Key: "a", Backend: stubBackend("a"), Models: []ModelSpec{{Name: "gpt-5"}}})
	_, err := r.Choose("claude-x")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestChoose_MatchesAlias(t *testing.T) {
	r := New(First)
	r.Add(Entry{Key: "a", Backend: stubBackend("a"), Models: []ModelSpec{{Name: "gpt-5", Aliases: []string{"default"}}}})
	sel, err := r.Choose("default")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", sel.Model)
}

func TestChoose_EmptyModelMatchesAll(t *testing.T) {
	r := New(First)
	r.Add(Entry{Key: "a", Backend: stubBackend("a"), Models: []ModelSpec{{Name: "gpt-5"}}})
	r.Add(Entry{Key: "b", Backend: stubBackend("b"), Models: []ModelSpec{{Name: "claude"}}})
	sel, err := r.Choose("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", sel.Model)
}

func TestChoose_RoundRobinCyclesStably(t *testing.T) {
	r := New(RoundRobin)
	r.Add(Entry{Key: "a", Backend: stubBackend("a"), Models: []ModelSpec{{Name: "m"}}})
	r.Add(Entry{Key: "b", Backend: stubBackend("b"), Models: []ModelSpec{{Name: "m"}}})

	var keys []string
	for i := 0; i < 4; i++ {
		sel, err := r.Choose("m")
		require.NoError(t, err)
		keys = append(keys, sel.Entry.Key)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, keys)
}

func TestChoose_CheapestPicksLowestCombinedPrice(t *testing.T) {
	r := New(Cheapest)
	r.Add(Entry{Key: "expensive", Backend: stubBackend("expensive"), Models: []ModelSpec{
		{Name: "m", InputPer1K: 10, OutputPer1K: 10},
	}})
	r.Add(Entry{Key: "cheap", Backend: stubBackend("cheap"), Models: []ModelSpec{
		{Name: "m", InputPer1K: 1, OutputPer1K: 1},
	}})
	sel, err := r.Choose("m")
	require.NoError(t, err)
	assert.Equal(t, "cheap", sel.Entry.Key)
}

func TestChoose_CheapestTiesBrokenByRegistrationOrder(t *testing.T) {
	r := New(Cheapest)
	r.Add(Entry{Key: "first", Backend: stubBackend("first"), Models: []ModelSpec{
		{Name: "m", InputPer1K: 1, OutputPer1K: 1},
	}})
	r.Add(Entry{Key: "second", Backend: stubBackend("second"), Models: []ModelSpec{
		{Name: "m", InputPer1K: 1, OutputPer1K: 1},
	}})
	sel, err := r.Choose("m")
	require.NoError(t, err)
	assert.Equal(t, "first", sel.Entry.Key)
}
