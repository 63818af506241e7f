package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const fixedWindowScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
    ttl = tonumber(ARGV[2])
  end
  return {0, current, ttl}
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {1, count, ttl}
`

var fixedWindowLua = redis.NewScript(fixedWindowScript)

// DefaultPrefix is the key namespace used when New is given an empty prefix.
const DefaultPrefix = "arl"

// Policy is a (count, window) pair.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidPolicy)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be >= 1ms", ErrInvalidPolicy)
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.Limit, p.Window)
}

// Decision is the outcome of one [Limiter.Check].
type Decision struct {
	Allowed bool
	// Count is the number of admitted hits in the current window.
	Count int64
	Limit int
	// ResetAfter is the time until the current window closes.
	ResetAfter time.Duration
	// RetryAfter is set only when the hit was denied.
	RetryAfter time.Duration
}

// Remaining returns how many more hits the current window admits.
func (d Decision) Remaining() int {
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// Limiter counts hits per key in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key builds the counter key for a client and route. Addresses containing a
// colon (IPv6) are bracketed so the ip/route boundary stays unambiguous.
func (l *Limiter) Key(clientIP, route string) string {
	if strings.ContainsAny(clientIP, ":[") {
		clientIP = "[" + clientIP + "]"
	}
	return l.prefix + ":" + clientIP + ":" + route
}

// Check records one hit against key unless the window is already full. A denied
// hit is not counted.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	policy := Policy{Limit: limit, Window: window}
	if err := policy.Validate(); err != nil {
		return Decision{}, err
	}

	res, err := fixedWindowLua.Run(ctx, l.redis, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}

	d := Decision{
		Allowed:    res[0] == 1,
		Count:      res[1],
		Limit:      limit,
		ResetAfter: time.Duration(res[2]) * time.Millisecond,
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAfter
	}
	return d, nil
}

// CheckPolicy is Check with a [Policy].
func (l *Limiter) CheckPolicy(ctx context.Context, key string, p Policy) (Decision, error) {
	return l.Check(ctx, key, p.Limit, p.Window)
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
