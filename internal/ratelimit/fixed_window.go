package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counts hits in KEYS[1], arming the expiry on the first hit of a window.
// Returns {count, remaining ttl in ms}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter limits hits per key in fixed windows shared through Redis.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Config configures a FixedWindowLimiter.
type Config struct {
	Addr     string
	Password string
	Prefix   string
	Limit    int
	Window   time.Duration
}

// NewFixedWindowLimiter creates a Redis-backed limiter.
func NewFixedWindowLimiter(cfg Config) (*FixedWindowLimiter, error) {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "jstagram:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:  cfg.Limit,
		window: cfg.Window,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow records a hit for key. Redis failures deny the hit.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	d, err := l.hit(ctx, key)
	if err != nil {
		return Decision{RetryAfter: l.window}
	}
	return d
}

func (l *FixedWindowLimiter) hit(ctx context.Context, key string) (Decision, error) {
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	vals, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("unexpected script reply %v", vals)
	}
	count, ttl := vals[0], vals[1]
	if count <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
	}
	retry := time.Duration(ttl) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{RetryAfter: retry}, nil
}

// Close releases the Redis connection pool.
func (l *FixedWindowLimiter) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
