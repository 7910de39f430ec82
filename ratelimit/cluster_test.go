package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/pulse/rmap"
)

// fakeClusterMap is an in-process stand-in for rmapClusterMap, letting
// ClusterCoordinator's seed/watch logic be exercised without a Redis-backed
// rmap.Map.
type fakeClusterMap struct {
	mu     sync.Mutex
	values map[string]string
	ch     chan rmap.EventKind
}

func newFakeClusterMap() *fakeClusterMap {
	return &fakeClusterMap{values: map[string]string{}, ch: make(chan rmap.EventKind, 4)}
}

func (f *fakeClusterMap) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeClusterMap) set(key, value string) {
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
	f.ch <- rmap.EventKind(0)
}

func (f *fakeClusterMap) Subscribe() <-chan rmap.EventKind { return f.ch }

func TestClusterCoordinator_SeedsLimiterFromExistingClusterValue(t *testing.T) {
	limiter := New(nil)
	cluster := newFakeClusterMap()
	cluster.values["openai:gpt-5"] = "7.5"

	c := &ClusterCoordinator{limiter: limiter, cluster: cluster}
	c.seedAndWatch(context.Background(), "openai:gpt-5", Limit{RPS: 1})

	limiter.mu.RLock()
	lim := limiter.limits["openai:gpt-5"]
	limiter.mu.RUnlock()
	assert.Equal(t, 7.5, lim.RPS)
}

func TestClusterCoordinator_SeedsClusterWhenMissing(t *testing.T) {
	limiter := New(nil)
	cluster := newFakeClusterMap()

	c := &ClusterCoordinator{limiter: limiter, cluster: cluster}
	c.seedAndWatch(context.Background(), "anthropic:claude", Limit{RPS: 3})

	v, ok := cluster.Get("anthropic:claude")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestClusterCoordinator_ReconcilesOnClusterChange(t *testing.T) {
	limiter := New(nil)
	cluster := newFakeClusterMap()

	c := &ClusterCoordinator{limiter: limiter, cluster: cluster}
	c.seedAndWatch(context.Background(), "k", Limit{RPS: 1})

	cluster.set("k", strconv.FormatFloat(9, 'g', -1, 64))

	require.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return limiter.limits["k"].RPS == 9
	}, time.Second, 5*time.Millisecond)
}
