package flows

import (
	"context"
	"time"

	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/session"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureValidate
	RotateFailureStale
	// RotateFailureSessionRevoked means a logout-all moved the epoch between
	// validation and consumption.
	RotateFailureSessionRevoked
	RotateFailureConsume
	RotateFailureIssue
)

type RotateSessionStore interface {
	ConsumeActiveRefresh(ctx context.Context, subject, tokenID string, epoch int64, blacklistTTL time.Duration) (session.ConsumeResult, error)
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Validate     ValidateDeps
	Issue        IssueDeps
	SessionStore RotateSessionStore
	Now          func() time.Time
	Warn         func(string, ...any)
}

// RotateResult carries the replacement pair or failure metadata. Validate is set
// when Failure is RotateFailureValidate; Issued is set on success.
type RotateResult struct {
	Failure  RotateFailureKind
	Validate ValidateFailureKind
	Err      error
	Claims   *jwt.Claims
	Issued   IssueResult
}

// RunRotate exchanges a refresh token for a new pair. The presented token must be
// the subject's active refresh token at an unchanged epoch; consuming it deletes
// the pointer and blacklists the token in one atomic store operation, so
// concurrent rotations of the same token have exactly one winner. Replaying a
// token that was already rotated away is reported as stale rather than revoked.
// The replacement pair carries the consumed token's epoch.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	v := RunValidate(ctx, refreshToken, jwt.TypeRefresh, deps.Validate)
	if v.Failure == ValidateFailureRevoked && v.RevokedBy == session.BlacklistRotated {
		return RotateResult{Failure: RotateFailureStale, Claims: v.Claims}
	}
	if v.Failure != ValidateFailureNone {
		return RotateResult{Failure: RotateFailureValidate, Validate: v.Failure, Err: v.Err, Claims: v.Claims}
	}
	claims := v.Claims

	consumed, err := deps.SessionStore.ConsumeActiveRefresh(ctx, claims.Subject, claims.ID, claims.Epoch, remainingLifetime(claims, deps.Now()))
	if err != nil {
		return RotateResult{Failure: RotateFailureConsume, Err: err, Claims: claims}
	}
	switch consumed {
	case session.ConsumeOK:
	case session.ConsumeEpochChanged:
		return RotateResult{Failure: RotateFailureSessionRevoked, Claims: claims}
	default:
		return RotateResult{Failure: RotateFailureStale, Claims: claims}
	}

	issued := RunIssueAtEpoch(ctx, claims.Subject, claims.Epoch, deps.Issue)
	if issued.Failure != IssueFailureNone {
		if deps.Warn != nil {
			deps.Warn("authcore: refresh consumed but reissue failed", "subject", claims.Subject, "error", issued.Err)
		}
		return RotateResult{Failure: RotateFailureIssue, Err: issued.Err, Claims: claims, Issued: issued}
	}

	return RotateResult{Claims: claims, Issued: issued}
}
