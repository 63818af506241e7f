package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that turn a denied [Decision] into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a non-positive limit or window.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
