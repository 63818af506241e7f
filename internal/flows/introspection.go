package flows

import (
	"context"
	"time"
)

type IntrospectionSessionStore interface {
	GetEpoch(ctx context.Context, subject string) (int64, error)
	GetActiveRefresh(ctx context.Context, subject string) (string, bool, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type IntrospectionDeps struct {
	SessionStore      IntrospectionSessionStore
	EngineNotReadyErr error
}

func RunSessionEpoch(ctx context.Context, subject string, deps IntrospectionDeps) (int64, error) {
	if deps.SessionStore == nil {
		return 0, deps.EngineNotReadyErr
	}
	return deps.SessionStore.GetEpoch(ctx, subject)
}

func RunActiveRefreshTokenID(ctx context.Context, subject string, deps IntrospectionDeps) (string, bool, error) {
	if deps.SessionStore == nil {
		return "", false, deps.EngineNotReadyErr
	}
	return deps.SessionStore.GetActiveRefresh(ctx, subject)
}

func RunHealth(ctx context.Context, deps IntrospectionDeps) (bool, time.Duration) {
	if deps.SessionStore == nil {
		return false, 0
	}
	latency, err := deps.SessionStore.Ping(ctx)
	return err == nil, latency
}
