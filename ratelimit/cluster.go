package ratelimit

import (
	"context"
	"strconv"

	"goa.design/pulse/rmap"
)

// clusterMap is the subset of rmap.Map used to coordinate a shared budget
// across processes.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	Subscribe() <-chan rmap.EventKind
}

type rmapClusterMap struct{ m *rmap.Map }

func (m *rmapClusterMap) Get(key string) (string, bool) { return m.m.Get(key) }
func (m *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return m.m.SetIfNotExists(ctx, key, value)
}
func (m *rmapClusterMap) Subscribe() <-chan rmap.EventKind { return m.m.Subscribe() }

// ClusterCoordinator seeds a Limiter key's RPS from a Pulse replicated map
// shared across a process group, and reconciles the local limit whenever the
// shared value changes. This is an optional deployment mode layered on top
// of the mandatory per-process token bucket in Limiter: a multi-replica
// deployment can use it to keep every replica's budget for a given
// provider/model in sync, while a single-process deployment never needs it.
type ClusterCoordinator struct {
	limiter *Limiter
	cluster clusterMap
}

// NewClusterCoordinator wires m into limiter for key, seeding the shared
// budget with initial if it does not yet exist. A nil m degrades to a
// no-op: the limiter keeps whatever local limit it was given.
func NewClusterCoordinator(ctx context.Context, limiter *Limiter, m *rmap.Map, key string, initial Limit) *ClusterCoordinator {
	c := &ClusterCoordinator{limiter: limiter}
	if m == nil || key == "" {
		return c
	}
	c.cluster = &rmapClusterMap{m: m}
	c.seedAndWatch(ctx, key, initial)
	return c
}

func (c *ClusterCoordinator) seedAndWatch(ctx context.Context, key string, initial Limit) {
	if _, ok := c.cluster.Get(key); !ok {
		// Best-effort seed; a concurrent writer may win, in which case the
		// subsequent Get below picks up their value instead.
		_, _ = c.cluster.SetIfNotExists(ctx, key, strconv.FormatFloat(initial.RPS, 'g', -1, 64))
	}
	if cur, ok := c.cluster.Get(key); ok {
		if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
			initial.RPS = v
		}
	}
	c.limiter.SetLimit(key, initial)

	ch := c.cluster.Subscribe()
	go func() {
		for range ch {
			cur, ok := c.cluster.Get(key)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(cur, 64)
			if err != nil || v <= 0 {
				continue
			}
			c.limiter.SetLimit(key, Limit{RPS: v})
		}
	}()
}
