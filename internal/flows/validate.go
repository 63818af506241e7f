package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
// Kinds are listed in check order.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureDecode
	ValidateFailureWrongType
	ValidateFailureRevoked
	ValidateFailureMissingSubject
	ValidateFailureSessionRevoked
	ValidateFailureStore
	// ValidateFailureCorrupt means the stored epoch could not be parsed.
	ValidateFailureCorrupt
)

// ValidateResult returns either decoded claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	// SubjectID is the integer identity id parsed from the subject claim.
	SubjectID int64
	// RevokedBy is the blacklist marker when Failure is ValidateFailureRevoked.
	RevokedBy string
}

type ValidateSessionStore interface {
	LookupBlacklist(ctx context.Context, tokenID string) (string, bool, error)
	GetEpoch(ctx context.Context, subject string) (int64, error)
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Decode       func(string) (*jwt.Claims, error)
	SessionStore ValidateSessionStore
}

// RunValidate decodes tokenStr and checks, cheapest first: type, blacklist,
// subject, then session epoch.
func RunValidate(ctx context.Context, tokenStr, expectedType string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Decode(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDecode, Err: err}
	}

	if claims.Type != expectedType {
		return ValidateResult{Failure: ValidateFailureWrongType, Claims: claims}
	}

	// A token without an id can never be individually revoked, so it is refused.
	if claims.ID == "" {
		return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims}
	}
	marker, revoked, err := deps.SessionStore.LookupBlacklist(ctx, claims.ID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Claims: claims}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims, RevokedBy: marker}
	}

	subjectID, ok := parseSubject(claims.Subject)
	if !ok {
		return ValidateResult{Failure: ValidateFailureMissingSubject, Claims: claims}
	}

	epoch, err := deps.SessionStore.GetEpoch(ctx, claims.Subject)
	if errors.Is(err, session.ErrCorruptEpoch) {
		return ValidateResult{Failure: ValidateFailureCorrupt, Err: err, Claims: claims, SubjectID: subjectID}
	}
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Claims: claims, SubjectID: subjectID}
	}
	if claims.Epoch != epoch {
		return ValidateResult{Failure: ValidateFailureSessionRevoked, Claims: claims, SubjectID: subjectID}
	}

	return ValidateResult{Claims: claims, SubjectID: subjectID}
}

func parseSubject(sub string) (int64, bool) {
	if sub == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// remainingLifetime returns how long the token stays valid on its own.
func remainingLifetime(claims *jwt.Claims, now time.Time) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(now)
}
