// Package session provides the Redis-backed session state behind token validation:
// per-identity session epochs, the single active refresh-token pointer, and the
// token-id blacklist.
//
// # Key layout
//
//	{prefix}:ver:{subject}  session epoch, no TTL, absent means 1
//	{prefix}:ra:{subject}   active refresh token id, TTL = refresh lifetime
//	{prefix}:bl:{jti}       blacklist marker, TTL = token's remaining lifetime
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations). It does NOT interpret tokens or
// decide whether a token is valid; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Treat a connectivity failure as "not found". Every Redis error other than
//     redis.Nil is wrapped with [ErrRedisUnavailable].
package session
