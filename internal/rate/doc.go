// Package rate provides the Redis-backed fixed-window limiter used for per-route,
// per-client request throttling.
//
// # Window semantics
//
// Fixed window: a counter key is created by the first hit and expires exactly one
// window later. The read, the increment, and the first-hit expiry run as one Lua
// script, so concurrent callers cannot both observe the first hit. A burst that
// straddles a window boundary may admit up to twice the limit.
//
// # What this package must NOT do
//
//   - Decide route policies (the Engine maps routes to limits).
//   - Report "allowed" when Redis is unreachable.
package rate
