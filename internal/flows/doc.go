// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRotate, etc.) accepts a typed
// dependency struct and returns a result carrying a failure kind instead of a bare
// error. The Engine maps failure kinds to its public error taxonomy, records
// metrics, and emits audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, session store, and rate limiter.
// They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
