package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned for every Redis failure other than a missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorruptEpoch is returned when a stored session epoch is not a positive integer.
var ErrCorruptEpoch = errors.New("session epoch corrupt")

// DefaultPrefix is the key namespace used when NewStore is given an empty prefix.
const DefaultPrefix = "ac"

// Blacklist entry values. A token consumed by rotation is marked differently from
// one revoked by logout so that replay of a rotated token can be reported as reuse.
const (
	BlacklistRevoked = "revoked"
	BlacklistRotated = "rotated"
)

// InitialEpoch is the epoch of an identity that has never logged out everywhere.
const InitialEpoch int64 = 1

const minTTL = time.Second

const bumpEpochScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  redis.call("SET", KEYS[1], ARGV[1])
elseif not string.match(raw, "^%d+$") or tonumber(raw) < tonumber(ARGV[1]) then
  return -1
end
local epoch = redis.call("INCR", KEYS[1])
if KEYS[2] then
  redis.call("DEL", KEYS[2])
end
return epoch
`

var bumpEpochLua = redis.NewScript(bumpEpochScript)

const consumeRefreshScript = `
local epoch = redis.call("GET", KEYS[3]) or ARGV[5]
if tonumber(epoch) ~= tonumber(ARGV[4]) then
  return 2
end
local current = redis.call("GET", KEYS[1])
if current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[2])
return 1
`

// ConsumeResult is the outcome of [Store.ConsumeActiveRefresh].
type ConsumeResult int

const (
	// ConsumeNotActive means the pointer is absent or names another token.
	ConsumeNotActive ConsumeResult = iota
	// ConsumeOK means the token was active and has been consumed.
	ConsumeOK
	// ConsumeEpochChanged means the session epoch moved past the token's epoch.
	ConsumeEpochChanged
)

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

// Store is a Redis-backed holder of session epochs, active refresh pointers, and
// blacklisted token ids. It is safe for concurrent use; atomicity comes from Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) epochKey(subject string) string {
	return s.prefix + ":ver:" + subject
}

func (s *Store) refreshKey(subject string) string {
	return s.prefix + ":ra:" + subject
}

func (s *Store) blacklistKey(tokenID string) string {
	return s.prefix + ":bl:" + tokenID
}

// GetEpoch returns the current session epoch for subject, or [InitialEpoch] when none
// has been recorded.
//
//	Performance: 1 Redis GET.
func (s *Store) GetEpoch(ctx context.Context, subject string) (int64, error) {
	raw, err := s.redis.Get(ctx, s.epochKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return InitialEpoch, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || epoch < InitialEpoch {
		return 0, fmt.Errorf("%w: %q", ErrCorruptEpoch, raw)
	}
	return epoch, nil
}

// BumpEpoch atomically advances the session epoch and returns the new value. An
// absent epoch counts as [InitialEpoch], so the first bump yields 2. A stored value
// that is not a positive integer is left alone and reported as [ErrCorruptEpoch].
//
//	Performance: 1 Lua script.
func (s *Store) BumpEpoch(ctx context.Context, subject string) (int64, error) {
	return s.bump(ctx, []string{s.epochKey(subject)})
}

// EndAllSessions bumps the epoch and clears the active refresh pointer in one script.
//
//	Performance: 1 Lua script.
func (s *Store) EndAllSessions(ctx context.Context, subject string) (int64, error) {
	return s.bump(ctx, []string{s.epochKey(subject), s.refreshKey(subject)})
}

func (s *Store) bump(ctx context.Context, keys []string) (int64, error) {
	epoch, err := bumpEpochLua.Run(ctx, s.redis, keys, InitialEpoch).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if epoch < 0 {
		return 0, ErrCorruptEpoch
	}
	return epoch, nil
}

// SetActiveRefresh records tokenID as the only refresh token eligible for rotation,
// replacing any previous pointer.
//
//	Performance: 1 Redis SET.
func (s *Store) SetActiveRefresh(ctx context.Context, subject, tokenID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.refreshKey(subject), tokenID, clampTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetActiveRefresh returns the active refresh token id. ok is false when no pointer exists.
//
//	Performance: 1 Redis GET.
func (s *Store) GetActiveRefresh(ctx context.Context, subject string) (tokenID string, ok bool, err error) {
	tokenID, err = s.redis.Get(ctx, s.refreshKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return tokenID, true, nil
}

// DeleteActiveRefresh removes the pointer. Deleting an absent pointer is not an error.
func (s *Store) DeleteActiveRefresh(ctx context.Context, subject string) error {
	if err := s.redis.Del(ctx, s.refreshKey(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeActiveRefresh atomically checks that the subject's epoch still equals epoch
// and that tokenID is the active pointer. If both hold it deletes the pointer and
// blacklists tokenID as [BlacklistRotated] for blacklistTTL. Otherwise nothing is
// written and the result says which check failed; the epoch check wins when both
// fail, since logout-all also clears the pointer.
//
//	Performance: 1 Lua script.
func (s *Store) ConsumeActiveRefresh(ctx context.Context, subject, tokenID string, epoch int64, blacklistTTL time.Duration) (ConsumeResult, error) {
	keys := []string{s.refreshKey(subject), s.blacklistKey(tokenID), s.epochKey(subject)}
	res, err := consumeRefreshLua.Run(ctx, s.redis, keys,
		tokenID, clampTTL(blacklistTTL).Milliseconds(), BlacklistRotated, epoch, InitialEpoch).Int64()
	if err != nil {
		return ConsumeNotActive, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch res {
	case 1:
		return ConsumeOK, nil
	case 2:
		return ConsumeEpochChanged, nil
	default:
		return ConsumeNotActive, nil
	}
}

// Blacklist marks tokenID as [BlacklistRevoked] for ttl.
//
//	Performance: 1 Redis SET.
func (s *Store) Blacklist(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.blacklistKey(tokenID), BlacklistRevoked, clampTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeRefresh blacklists tokenID and deletes the subject's active pointer in one
// MULTI/EXEC transaction.
func (s *Store) RevokeRefresh(ctx context.Context, subject, tokenID string, ttl time.Duration) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.blacklistKey(tokenID), BlacklistRevoked, clampTTL(ttl))
		pipe.Del(ctx, s.refreshKey(subject))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether tokenID has been revoked.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// LookupBlacklist returns the blacklist marker for tokenID. ok is false when the
// token is not blacklisted.
//
//	Performance: 1 Redis GET.
func (s *Store) LookupBlacklist(ctx context.Context, tokenID string) (reason string, ok bool, err error) {
	reason, err = s.redis.Get(ctx, s.blacklistKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return reason, true, nil
}

// Ping measures Redis round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// go-redis treats a zero expiration as "keep forever".
func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}
