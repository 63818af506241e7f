// Package authcore provides stateless RS256 access and refresh tokens backed by a
// shared Redis store for revocation, single-use refresh rotation, and fixed-window
// rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build]. Engines in
// different processes cooperate through Redis alone.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], the error
// taxonomy and value types. Flow orchestration, rate limiting, metric storage and audit
// dispatch live under internal/ and are never exported. The keys, jwt and session
// packages are usable on their own.
//
// # What this package must NOT do
//
//   - Store users, passwords or any relational data. Identity lookup is injected.
//   - Log token strings or key material.
//   - Treat an unreachable store as a successful check.
//
// # Performance contract
//
// Validate is the hot path: one signature verification plus two Redis reads
// (blacklist, epoch). Rotate adds one atomic script and one write.
package authcore
