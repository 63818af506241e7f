package flows

import (
	"context"
	"time"

	"github.com/bugforge/authcore/internal/rate"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Decode != nil
}

func (s Service) Issue(ctx context.Context, subject string) IssueResult {
	return RunIssue(ctx, subject, s.deps.Issue)
}

func (s Service) Validate(ctx context.Context, tokenStr, expectedType string) ValidateResult {
	return RunValidate(ctx, tokenStr, expectedType, s.deps.Validate)
}

func (s Service) Rotate(ctx context.Context, refreshToken string) RotateResult {
	return RunRotate(ctx, refreshToken, s.deps.Rotate)
}

func (s Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, subject string) LogoutAllResult {
	return RunLogoutAll(ctx, subject, s.deps.Logout)
}

func (s Service) CheckRoute(ctx context.Context, clientIP, route string) RateLimitResult {
	return RunCheckRoute(ctx, clientIP, route, s.deps.RateLimit)
}

func (s Service) CheckKey(ctx context.Context, key string, policy rate.Policy) RateLimitResult {
	return RunCheck(ctx, key, policy, s.deps.RateLimit)
}

func (s Service) SessionEpoch(ctx context.Context, subject string) (int64, error) {
	return RunSessionEpoch(ctx, subject, s.deps.Introspection)
}

func (s Service) ActiveRefreshTokenID(ctx context.Context, subject string) (string, bool, error) {
	return RunActiveRefreshTokenID(ctx, subject, s.deps.Introspection)
}

func (s Service) Health(ctx context.Context) (bool, time.Duration) {
	return RunHealth(ctx, s.deps.Introspection)
}
