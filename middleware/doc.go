// Package middleware adapts authcore.Engine to net/http.
//
// # Handlers
//
//   - [Guard] validates a bearer token of one type and stores its claims in the
//     request context.
//   - [Authenticate] is Guard for access tokens plus a caller-supplied user lookup.
//   - [RateLimit] and [RateLimitRoute] apply the engine's fixed-window policies per
//     client address.
//
// [StatusFor] maps the authcore error taxonomy onto HTTP status codes; every
// handler in this package uses it, so callers that write their own endpoints
// should too.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Answer 401 when the store is down. Outages are 503.
package middleware
