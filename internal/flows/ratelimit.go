package flows

import (
	"context"

	"github.com/bugforge/authcore/internal/rate"
)

// RateLimitFailureKind classifies rate-limit outcomes for root-level mapping.
type RateLimitFailureKind int

const (
	RateLimitFailureNone RateLimitFailureKind = iota
	RateLimitFailureDenied
	RateLimitFailurePolicy
	RateLimitFailureStore
)

type RateLimiter interface {
	Key(clientIP, route string) string
	CheckPolicy(ctx context.Context, key string, p rate.Policy) (rate.Decision, error)
}

// RateLimitDeps captures per-route throttling dependencies.
type RateLimitDeps struct {
	Limiter  RateLimiter
	Routes   map[string]rate.Policy
	Fallback rate.Policy
}

type RateLimitResult struct {
	Failure  RateLimitFailureKind
	Err      error
	Key      string
	Policy   rate.Policy
	Decision rate.Decision
}

// ResolvePolicy returns the configured policy for route, or the fallback.
func ResolvePolicy(route string, deps RateLimitDeps) rate.Policy {
	if p, ok := deps.Routes[route]; ok {
		return p
	}
	return deps.Fallback
}

// RunCheckRoute counts one hit for (clientIP, route) under the route's policy.
func RunCheckRoute(ctx context.Context, clientIP, route string, deps RateLimitDeps) RateLimitResult {
	return RunCheck(ctx, deps.Limiter.Key(clientIP, route), ResolvePolicy(route, deps), deps)
}

// RunCheck counts one hit for an explicit key and policy.
func RunCheck(ctx context.Context, key string, policy rate.Policy, deps RateLimitDeps) RateLimitResult {
	if err := policy.Validate(); err != nil {
		return RateLimitResult{Failure: RateLimitFailurePolicy, Err: err, Key: key, Policy: policy}
	}

	d, err := deps.Limiter.CheckPolicy(ctx, key, policy)
	if err != nil {
		return RateLimitResult{Failure: RateLimitFailureStore, Err: err, Key: key, Policy: policy}
	}
	if !d.Allowed {
		return RateLimitResult{Failure: RateLimitFailureDenied, Key: key, Policy: policy, Decision: d}
	}
	return RateLimitResult{Key: key, Policy: policy, Decision: d}
}
