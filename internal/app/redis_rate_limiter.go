package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The counter always carries the window expiry before its first increment.
var promptWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local n = redis.call("INCR", KEYS[1])
return {n, redis.call("PTTL", KEYS[1])}
`)

// RateLimiter counts requests per (scope, subject) in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter shares prompt quotas across service replicas.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, keyPrefix string) *RedisRateLimiter {
	base := strings.TrimSuffix(strings.TrimSpace(keyPrefix), ":")
	if base == "" {
		base = "herodrop"
	}
	return &RedisRateLimiter{client: client, prefix: base + ":prompt_quota"}
}

// ConsumeRateLimit records one prompt call by subject under scope and returns
// how many calls the window holds so far. Blank scopes or subjects and a non
// positive limit are never counted.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	key := r.prefix + ":" + scope + ":" + subject
	raw, err := promptWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("prompt quota %s: %w", scope, err)
	}
	return decodeWindow(raw, window)
}

// decodeWindow turns the script's {count, pttl} reply into a count and a
// whole-second Retry-After hint.
func decodeWindow(raw interface{}, window time.Duration) (int, int, error) {
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, 0, fmt.Errorf("prompt quota: unexpected reply %T", raw)
	}
	count, ok := reply[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("prompt quota: count is %T", reply[0])
	}
	remaining := window
	if ms, ok := reply[1].(int64); ok && ms > 0 {
		remaining = time.Duration(ms) * time.Millisecond
	}
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(count), retryAfter, nil
}
