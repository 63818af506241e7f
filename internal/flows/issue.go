package flows

import (
	"context"
	"time"

	"github.com/bugforge/authcore/jwt"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureEpoch
	IssueFailureEncode
	IssueFailurePointer
)

type TokenEncoder interface {
	Encode(claims jwt.Claims, ttl time.Duration) (string, int64, error)
}

type IssueSessionStore interface {
	GetEpoch(ctx context.Context, subject string) (int64, error)
	SetActiveRefresh(ctx context.Context, subject, tokenID string, ttl time.Duration) error
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Codec        TokenEncoder
	SessionStore IssueSessionStore
	NewTokenID   func() string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// IssueResult carries either a freshly minted pair or failure metadata.
type IssueResult struct {
	Failure        IssueFailureKind
	Err            error
	Subject        string
	Epoch          int64
	AccessToken    string
	AccessTokenID  string
	RefreshToken   string
	RefreshTokenID string
	ExpiresIn      int64
}

// RunIssue mints an access/refresh pair at the subject's current epoch and makes
// the new refresh token the only one eligible for rotation.
func RunIssue(ctx context.Context, subject string, deps IssueDeps) IssueResult {
	epoch, err := deps.SessionStore.GetEpoch(ctx, subject)
	if err != nil {
		return IssueResult{Failure: IssueFailureEpoch, Err: err, Subject: subject}
	}
	return RunIssueAtEpoch(ctx, subject, epoch, deps)
}

// RunIssueAtEpoch mints a pair bound to epoch without reading the store. Rotation
// uses the epoch of the consumed token so a logout-all that lands mid-rotation
// leaves the replacement pair already invalid.
func RunIssueAtEpoch(ctx context.Context, subject string, epoch int64, deps IssueDeps) IssueResult {
	accessID := deps.NewTokenID()
	refreshID := deps.NewTokenID()

	access, expiresIn, err := deps.Codec.Encode(newClaims(subject, jwt.TypeAccess, accessID, epoch), deps.AccessTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureEncode, Err: err, Subject: subject, Epoch: epoch}
	}
	refresh, _, err := deps.Codec.Encode(newClaims(subject, jwt.TypeRefresh, refreshID, epoch), deps.RefreshTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureEncode, Err: err, Subject: subject, Epoch: epoch}
	}

	if err := deps.SessionStore.SetActiveRefresh(ctx, subject, refreshID, deps.RefreshTTL); err != nil {
		return IssueResult{Failure: IssueFailurePointer, Err: err, Subject: subject, Epoch: epoch}
	}

	return IssueResult{
		Failure:        IssueFailureNone,
		Subject:        subject,
		Epoch:          epoch,
		AccessToken:    access,
		AccessTokenID:  accessID,
		RefreshToken:   refresh,
		RefreshTokenID: refreshID,
		ExpiresIn:      expiresIn,
	}
}

func newClaims(subject, typ, tokenID string, epoch int64) jwt.Claims {
	c := jwt.Claims{Type: typ, Epoch: epoch}
	c.Subject = subject
	c.ID = tokenID
	return c
}
