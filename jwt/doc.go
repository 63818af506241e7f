// Package jwt encodes and decodes the signed access and refresh tokens issued by
// authcore. Signing uses an RSA-family algorithm; verification needs only the
// public key, so a verify-only Manager can run in processes that never hold the
// private key.
package jwt
