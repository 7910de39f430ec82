// Package promptcache caches chat responses keyed by a normalized
// fingerprint of (version, provider, model, request), so that a repeated
// prompt within the same cacheability envelope skips the upstream call
// entirely.
package promptcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/featherlabs/feather/cache"
	"github.com/featherlabs/feather/llm"
)

const keyVersion = "v1"

// Options configures cacheability rules and TTL.
type Options struct {
	// MaxTemperature is the inclusive upper bound on a cacheable request's
	// temperature. Defaults to 0.3.
	MaxTemperature float64
	// AllowMultiStep permits caching requests with more than one user turn
	// or any assistant/tool turns. When false (the default) only a single
	// bare user message is cacheable.
	AllowMultiStep bool
	// TTL is how long a cached response is retained. Defaults to 5 minutes.
	TTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxTemperature == 0 {
		o.MaxTemperature = 0.3
	}
	if o.TTL == 0 {
		o.TTL = 5 * time.Minute
	}
	return o
}

// Decision is the outcome of Prepare.
type Decision struct {
	Cacheable bool
	Key       string
	Hit       bool
	Response  llm.ChatResponse
}

// PromptCache checks and populates a chat-response cache.
type PromptCache struct {
	store cache.Store
	opts  Options
}

// New constructs a PromptCache. A nil store defaults to an in-process
// cache.InMemStore.
func New(store cache.Store, opts Options) *PromptCache {
	if store == nil {
		store = cache.NewInMemStore()
	}
	return &PromptCache{store: store, opts: opts.withDefaults()}
}

// cacheable reports whether req falls within this cache's acceptance
// envelope, per the rules in spec §4.5.
func (c *PromptCache) cacheable(req llm.ChatRequest) bool {
	if len(req.Messages) == 0 {
		return false
	}
	if req.HasTemperature && req.Temperature > c.opts.MaxTemperature {
		return false
	}
	if c.opts.AllowMultiStep {
		return true
	}
	if len(req.Messages) != 1 {
		return false
	}
	return req.Messages[0].Role == llm.RoleUser
}

// Key computes the PromptCacheKey for (provider, model, req). Whitespace in
// message content is normalized and object-shaped fields are emitted in a
// stable, sorted form so that semantically identical requests collide.
func Key(provider, model string, req llm.ChatRequest) string {
	var b strings.Builder
	b.WriteString(keyVersion)
	b.WriteByte('|')
	b.WriteString(provider)
	b.WriteByte('|')
	b.WriteString(model)
	b.WriteByte('|')
	for _, m := range req.Messages {
		b.WriteString(string(m.Role))
		b.WriteByte(':')
		b.WriteString(normalizeWhitespace(m.Content))
		b.WriteByte(';')
	}
	if req.HasTemperature {
		fmt.Fprintf(&b, "t=%g;", req.Temperature)
	}
	if req.MaxTokens != 0 {
		fmt.Fprintf(&b, "mt=%d;", req.MaxTokens)
	}
	if req.HasTopP {
		fmt.Fprintf(&b, "tp=%g;", req.TopP)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("prompt:%s:%s", keyVersion, hex.EncodeToString(sum[:]))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Prepare computes the cache key for (provider, model, req) and probes the
// store, returning a deep-cloned hit if present.
func (c *PromptCache) Prepare(provider, model string, req llm.ChatRequest) Decision {
	if !c.cacheable(req) {
		return Decision{Cacheable: false}
	}
	key := Key(provider, model, req)
	rec, ok := c.store.Get(key)
	if !ok {
		return Decision{Cacheable: true, Key: key}
	}
	resp, ok := rec.Value.(llm.ChatResponse)
	if !ok {
		return Decision{Cacheable: true, Key: key}
	}
	return Decision{Cacheable: true, Key: key, Hit: true, Response: deepCopyResponse(resp)}
}

// Write persists a deep-cloned copy of resp for a cacheable decision.
// Callers must only invoke this after a successful upstream call (no error).
func (c *PromptCache) Write(d Decision, resp llm.ChatResponse) {
	if !d.Cacheable || d.Key == "" {
		return
	}
	c.store.Set(d.Key, cache.Record{Value: deepCopyResponse(resp), CreatedAt: time.Now()}, c.opts.TTL)
}

// deepCopyResponse clones resp so a cache hit never shares state with a
// previous read or write. Raw is adapter-owned (it points into the
// provider SDK's native response type; see provideradapter's Chat
// implementations) and isn't meaningful once detached from that call, so
// clones drop it rather than risk aliasing a mutable SDK value.
func deepCopyResponse(resp llm.ChatResponse) llm.ChatResponse {
	resp.Raw = nil
	return resp
}
