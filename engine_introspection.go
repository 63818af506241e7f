package authcore

import (
	"context"
	"strconv"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// SessionEpoch returns the subject's current session epoch. Subjects that never
// logged out everywhere are at epoch 1.
func (e *Engine) SessionEpoch(ctx context.Context, subject int64) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if subject <= 0 {
		return 0, ErrInvalidSubject
	}

	epoch, err := e.flows.SessionEpoch(ctx, strconv.FormatInt(subject, 10))
	if err != nil {
		return 0, storeFailure(err)
	}
	return epoch, nil
}

// ActiveRefreshTokenID returns the id of the subject's rotatable refresh token.
// ok is false when no refresh token is active.
func (e *Engine) ActiveRefreshTokenID(ctx context.Context, subject int64) (tokenID string, ok bool, err error) {
	if !e.ready() {
		return "", false, ErrEngineNotReady
	}
	if subject <= 0 {
		return "", false, ErrInvalidSubject
	}

	tokenID, ok, err = e.flows.ActiveRefreshTokenID(ctx, strconv.FormatInt(subject, 10))
	if err != nil {
		return "", false, storeUnavailable(err)
	}
	return tokenID, ok, nil
}

// Health pings Redis.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	ok, latency := e.flows.Health(ctx)
	return HealthStatus{RedisAvailable: ok, RedisLatency: latency}
}

// PublicKeyPEM returns the verification key as a PKIX PEM block, for services
// that only verify tokens.
func (e *Engine) PublicKeyPEM() ([]byte, error) {
	if e == nil || e.keypair == nil {
		return nil, ErrEngineNotReady
	}
	return e.keypair.PublicKeyPEM()
}

// EphemeralKeys reports whether the engine signs with a generated test keypair.
func (e *Engine) EphemeralKeys() bool {
	return e != nil && e.keypair != nil && e.keypair.Ephemeral()
}
