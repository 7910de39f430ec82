// Package toolcache caches tool call results keyed by (tool name, stable
// JSON of arguments), mirroring the shape of promptcache but gated by each
// tool's own cacheTtlSec declaration rather than a shared policy.
package toolcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/featherlabs/feather/cache"
)

// Decision is the outcome of Prepare.
type Decision struct {
	Cacheable bool
	Key       string
	Hit       bool
	Value     any
}

// ToolCache checks and populates a tool-result cache.
type ToolCache struct {
	store cache.Store
}

// New constructs a ToolCache backed by store. A nil store defaults to an
// in-process cache.InMemStore.
func New(store cache.Store) *ToolCache {
	if store == nil {
		store = cache.NewInMemStore()
	}
	return &ToolCache{store: store}
}

// Key computes the cache key for a tool call. A key-computation error marks
// the call uncacheable; it must never fail the underlying tool invocation.
func Key(toolName string, args any) (string, error) {
	serialized, err := stableJSON(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(serialized))
	return fmt.Sprintf("%s:%s", toolName, hex.EncodeToString(sum[:])), nil
}

// Prepare probes the cache for toolName/args. cacheTtlSec <= 0 means the
// tool opted out of caching entirely.
func (c *ToolCache) Prepare(toolName string, args any, cacheTtlSec int) Decision {
	if cacheTtlSec <= 0 {
		return Decision{Cacheable: false}
	}
	key, err := Key(toolName, args)
	if err != nil {
		return Decision{Cacheable: false}
	}
	rec, ok := c.store.Get(key)
	if !ok {
		return Decision{Cacheable: true, Key: key}
	}
	return Decision{Cacheable: true, Key: key, Hit: true, Value: deepCopy(rec.Value)}
}

// Write persists a tool result for a cacheable decision.
func (c *ToolCache) Write(d Decision, value any, cacheTtlSec int) {
	if !d.Cacheable || d.Key == "" {
		return
	}
	c.store.Set(d.Key, cache.Record{
		Value:     deepCopy(value),
		CreatedAt: time.Now(),
	}, time.Duration(cacheTtlSec)*time.Second)
}

// deepCopy clones the JSON-like value trees (map[string]any / []any /
// scalars) this package deals in, so cached records can never be mutated by
// a caller holding a reference to a previous read or write.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return x
	}
}
