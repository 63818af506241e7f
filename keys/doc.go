// Package keys loads and provisions the RSA signing keypair that every token is
// signed and verified with.
//
// # Modes
//
// A [Loader] is built once at startup in one of two modes:
//
//   - [ModeStrict] reads both PEM files and fails with [ErrKeysMissing] or
//     [ErrKeysUnreadable]. This is the only mode a production process may use.
//   - [ModeEphemeralTest] behaves like strict mode, except that when both files
//     are absent it generates an in-memory keypair and logs a warning. Tokens
//     signed with such a keypair do not survive a restart.
//
// [Ensure] is the separate, write-capable provisioning path used by tooling; Load
// never writes to disk.
//
// # What this package must NOT do
//
//   - Persist generated ephemeral keys.
//   - Expose private key material outside the process (only [Keypair.PublicKeyPEM] is published).
package keys
