package quota

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// incrScript atomically increments a namespaced counter and sets its TTL on
// first creation, returning the post-increment count. Loaded once and
// invoked by SHA; a NOSCRIPT response (e.g. after a server restart that
// flushed the script cache) falls back to plain Eval for that call.
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a distributed Limiter backed by Redis: each Consume call
// atomically increments a namespaced key and sets its expiry on first
// creation.
type RedisLimiter struct {
	client    *redis.Client
	namespace string
}

// NewRedisLimiter constructs a RedisLimiter. namespace prefixes every
// counter key, e.g. "feather:quota".
func NewRedisLimiter(client *redis.Client, namespace string) *RedisLimiter {
	if namespace == "" {
		namespace = "feather:quota"
	}
	return &RedisLimiter{client: client, namespace: namespace}
}

// Consume implements Limiter.
func (l *RedisLimiter) Consume(ctx context.Context, rule Rule, req Request) error {
	key, ok := Key(rule, req)
	if !ok {
		return nil
	}
	redisKey := fmt.Sprintf("%s:%s", l.namespace, key)

	count, err := l.run(ctx, redisKey, rule.WindowMs)
	if err != nil {
		return fmt.Errorf("quota: redis consume failed: %w", err)
	}
	if count > int64(rule.Limit) {
		return ErrQuotaExceeded
	}
	return nil
}

func (l *RedisLimiter) run(ctx context.Context, key string, windowMs int64) (int64, error) {
	res, err := incrScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil && isNoScript(err) {
		res, err = incrScript.Eval(ctx, l.client, []string{key}, windowMs).Result()
	}
	if err != nil {
		return 0, err
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("quota: unexpected script result type %T", res)
	}
	return count, nil
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}
