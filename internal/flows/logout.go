package flows

import (
	"context"
	"time"

	"github.com/bugforge/authcore/jwt"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureValidate
	LogoutFailureStore
)

type LogoutSessionStore interface {
	RevokeRefresh(ctx context.Context, subject, tokenID string, ttl time.Duration) error
	EndAllSessions(ctx context.Context, subject string) (int64, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Validate     ValidateDeps
	SessionStore LogoutSessionStore
	Now          func() time.Time
}

type LogoutResult struct {
	Failure  LogoutFailureKind
	Validate ValidateFailureKind
	Err      error
	Claims   *jwt.Claims
}

// RunLogout ends the session of one refresh token: it is blacklisted for the rest
// of its lifetime and the active pointer is cleared.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	v := RunValidate(ctx, refreshToken, jwt.TypeRefresh, deps.Validate)
	if v.Failure != ValidateFailureNone {
		return LogoutResult{Failure: LogoutFailureValidate, Validate: v.Failure, Err: v.Err, Claims: v.Claims}
	}

	ttl := remainingLifetime(v.Claims, deps.Now())
	if err := deps.SessionStore.RevokeRefresh(ctx, v.Claims.Subject, v.Claims.ID, ttl); err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, Claims: v.Claims}
	}
	return LogoutResult{Claims: v.Claims}
}

type LogoutAllResult struct {
	Failure LogoutFailureKind
	Err     error
	Epoch   int64
}

// RunLogoutAll bumps the subject's epoch and clears the active pointer. The
// blacklist is not touched.
func RunLogoutAll(ctx context.Context, subject string, deps LogoutDeps) LogoutAllResult {
	epoch, err := deps.SessionStore.EndAllSessions(ctx, subject)
	if err != nil {
		return LogoutAllResult{Failure: LogoutFailureStore, Err: err}
	}
	return LogoutAllResult{Epoch: epoch}
}
