package authcore

import (
	"errors"

	"github.com/bugforge/authcore/internal/rate"
	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/keys"
	"github.com/bugforge/authcore/session"
)

var (
	// ErrUnauthenticated is returned when a token fails signature, expiry, or format checks.
	// The codec error (jwt.ErrInvalidSignature, jwt.ErrExpired, ...) is joined with it.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrWrongTokenType is returned when an access token is presented where a refresh token is expected, or the reverse.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrRevoked is returned when the token id is blacklisted or missing.
	ErrRevoked = errors.New("token revoked")
	// ErrSessionRevoked is returned when the token's session epoch is no longer current.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrStaleRefreshToken is returned when a refresh token is not the subject's active one.
	ErrStaleRefreshToken = errors.New("stale refresh token")
	// ErrMissingSubject is returned when the subject claim is absent or not an integer.
	ErrMissingSubject = errors.New("missing subject")
	// ErrRateLimitExceeded is returned when a rate limit window is full.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable is returned when the shared store cannot be reached. It is never
	// a security rejection and must not be treated as one.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCorruptSessionState is returned when the store answered but the session
	// state it holds is unreadable. Requests fail closed; unlike an outage this
	// needs an operator to repair the key.
	ErrCorruptSessionState = errors.New("corrupt session state")
	// ErrEngineNotReady is returned by methods on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidSubject is returned when Issue or LogoutAll is called with a non-positive id.
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrUserNotFound is returned by caller-side lookups when the identity does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is returned by caller-side lookups when the identity is disabled.
	ErrUserInactive = errors.New("user inactive")

	// ErrKeysMissing is returned at startup when a key file does not exist.
	ErrKeysMissing = keys.ErrKeysMissing
	// ErrKeysUnreadable is returned at startup when a key file cannot be read or parsed.
	ErrKeysUnreadable = keys.ErrKeysUnreadable
)

// Reason labels are stable strings for logs, metrics, and audit events.
const (
	ReasonOK                = "ok"
	ReasonInvalidSignature  = "invalid_signature"
	ReasonExpired           = "expired"
	ReasonMalformed         = "malformed"
	ReasonInvalidClaims     = "invalid_claims"
	ReasonUnauthenticated   = "unauthenticated"
	ReasonWrongTokenType    = "wrong_token_type"
	ReasonRevoked           = "revoked"
	ReasonSessionRevoked    = "session_revoked"
	ReasonStaleRefreshToken = "stale_refresh_token"
	ReasonMissingSubject    = "missing_subject"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonStoreUnavailable  = "store_unavailable"
	ReasonCorruptState      = "corrupt_session_state"
	ReasonEngineNotReady    = "engine_not_ready"
	ReasonKeysMissing       = "keys_missing"
	ReasonKeysUnreadable    = "keys_unreadable"
	ReasonInvalidSubject    = "invalid_subject"
	ReasonUserNotFound      = "user_not_found"
	ReasonUserInactive      = "user_inactive"
	ReasonInternal          = "internal"
)

// Reason maps err to its taxonomy label. Codec causes are reported in preference to
// the generic ErrUnauthenticated so that expiry and forgery stay distinguishable.
func Reason(err error) string {
	switch {
	case err == nil:
		return ReasonOK
	case errors.Is(err, jwt.ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrInvalidClaims):
		return ReasonInvalidClaims
	case errors.Is(err, ErrUnauthenticated):
		return ReasonUnauthenticated
	case errors.Is(err, ErrWrongTokenType):
		return ReasonWrongTokenType
	case errors.Is(err, ErrRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrSessionRevoked):
		return ReasonSessionRevoked
	case errors.Is(err, ErrStaleRefreshToken):
		return ReasonStaleRefreshToken
	case errors.Is(err, ErrMissingSubject):
		return ReasonMissingSubject
	case errors.Is(err, ErrRateLimitExceeded), errors.Is(err, rate.ErrRateLimited):
		return ReasonRateLimitExceeded
	case errors.Is(err, ErrCorruptSessionState), errors.Is(err, session.ErrCorruptEpoch):
		return ReasonCorruptState
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, session.ErrRedisUnavailable), errors.Is(err, rate.ErrRedisUnavailable):
		return ReasonStoreUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return ReasonEngineNotReady
	case errors.Is(err, ErrKeysMissing):
		return ReasonKeysMissing
	case errors.Is(err, ErrKeysUnreadable):
		return ReasonKeysUnreadable
	case errors.Is(err, ErrInvalidSubject):
		return ReasonInvalidSubject
	case errors.Is(err, ErrUserNotFound):
		return ReasonUserNotFound
	case errors.Is(err, ErrUserInactive):
		return ReasonUserInactive
	default:
		return ReasonInternal
	}
}

// IsSecurityRejection reports whether err is an explicit denial (as opposed to an
// outage or programming error).
func IsSecurityRejection(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrWrongTokenType),
		errors.Is(err, ErrRevoked),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrStaleRefreshToken),
		errors.Is(err, ErrMissingSubject),
		errors.Is(err, ErrRateLimitExceeded):
		return true
	default:
		return false
	}
}
