package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	internalaudit "github.com/bugforge/authcore/internal/audit"
	"github.com/bugforge/authcore/internal/flows"
	"github.com/bugforge/authcore/internal/rate"
	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/keys"
	"github.com/bugforge/authcore/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are built once by [Builder.Build] and are safe for concurrent use.
// All shared state lives in Redis, so any number of Engines across processes may
// serve the same identities.
type Engine struct {
	config       Config
	logger       *slog.Logger
	keypair      *keys.Keypair
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flows        flows.Service
}

// Close flushes pending audit events. The Redis client is owned by the caller
// and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by audit event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns a copy; later engine activity does not change it.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Issue describes the issue operation and its observable behavior.
//
// Issue mints an access/refresh pair for subject at its current session epoch and
// makes the refresh token the subject's only rotatable one. Any refresh token
// issued earlier for the same subject stops being rotatable.
func (e *Engine) Issue(ctx context.Context, subject int64) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if subject <= 0 {
		return nil, ErrInvalidSubject
	}

	res := e.flows.Issue(ctx, strconv.FormatInt(subject, 10))
	if res.Failure != flows.IssueFailureNone {
		err := mapIssueFailure(res)
		e.metricInc(MetricIssueFailure)
		e.reject(ctx, "issue", err, res.Subject, "")
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, AuditTokenIssued, true, res.Subject, res.RefreshTokenID, nil, func() map[string]string {
		return map[string]string{"epoch": strconv.FormatInt(res.Epoch, 10)}
	})

	return e.pair(res), nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate decodes token and checks, in order: type, token id against the
// blacklist, subject, then session epoch. Rejections wrap the taxonomy
// sentinels; codec failures match both [ErrUnauthenticated] and the jwt cause.
// When Redis is unreachable the result is [ErrStoreUnavailable], never success.
func (e *Engine) Validate(ctx context.Context, token string, want TokenType) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Validate(ctx, token, string(want))
	e.metrics.Observe(MetricValidateLatency, time.Since(start))

	if res.Failure != flows.ValidateFailureNone {
		err := mapValidateFailure(res.Failure, res.Err)
		e.countValidateFailure(res.Failure)
		subject, tokenID := claimIDs(res.Claims)
		e.reject(ctx, "validate", err, subject, tokenID)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	return res.Claims, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate exchanges a refresh token for a new pair. The presented token is
// consumed atomically: of several concurrent rotations of the same token exactly
// one succeeds and the rest fail with [ErrStaleRefreshToken]. Replaying an already
// rotated token also fails with [ErrStaleRefreshToken]. A LogoutAll that lands
// during the rotation yields [ErrSessionRevoked] or a pair that is already
// revoked; it never yields a usable pair.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Rotate(ctx, refreshToken)
	e.metrics.Observe(MetricRotateLatency, time.Since(start))

	subject, tokenID := claimIDs(res.Claims)

	switch res.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRotateSuccess)
		e.metricInc(MetricTokenIssued)
		e.emitAudit(ctx, AuditRefreshRotated, true, subject, tokenID, nil, func() map[string]string {
			return map[string]string{"next_token_id": res.Issued.RefreshTokenID}
		})
		return e.pair(res.Issued), nil

	case flows.RotateFailureStale:
		e.metricInc(MetricRotateFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.LogAttrs(ctx, slog.LevelWarn, "authcore: refresh token reuse detected",
			slog.String("reason", ReasonStaleRefreshToken),
			slog.String("subject", subject),
			slog.String("token_id", tokenID),
		)
		e.emitAudit(ctx, AuditRefreshReuseDetected, false, subject, tokenID, ErrStaleRefreshToken, nil)
		return nil, ErrStaleRefreshToken

	case flows.RotateFailureValidate:
		err := mapValidateFailure(res.Validate, res.Err)
		e.metricInc(MetricRotateFailure)
		e.reject(ctx, "rotate", err, subject, tokenID)
		return nil, err

	case flows.RotateFailureSessionRevoked:
		e.metricInc(MetricRotateFailure)
		e.metricInc(MetricValidateSessionRevoked)
		e.reject(ctx, "rotate", ErrSessionRevoked, subject, tokenID)
		return nil, ErrSessionRevoked

	case flows.RotateFailureConsume:
		err := storeUnavailable(res.Err)
		e.metricInc(MetricRotateFailure)
		e.reject(ctx, "rotate", err, subject, tokenID)
		return nil, err

	default:
		err := mapIssueFailure(res.Issued)
		e.metricInc(MetricRotateFailure)
		e.reject(ctx, "rotate", err, subject, tokenID)
		return nil, err
	}
}

// Logout describes the logout operation and its observable behavior.
//
// Logout validates refreshToken, blacklists it for its remaining lifetime and
// clears the subject's active refresh pointer. Access tokens of the same session
// stay valid until expiry; use [Engine.LogoutAll] to end them.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken)
	subject, tokenID := claimIDs(res.Claims)

	switch res.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, AuditLogout, true, subject, tokenID, nil, nil)
		return nil
	case flows.LogoutFailureValidate:
		err := mapValidateFailure(res.Validate, res.Err)
		e.reject(ctx, "logout", err, subject, tokenID)
		return err
	default:
		err := storeFailure(res.Err)
		e.reject(ctx, "logout", err, subject, tokenID)
		return err
	}
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll bumps the subject's session epoch, which invalidates every access and
// refresh token minted before the call, and clears the active refresh pointer.
func (e *Engine) LogoutAll(ctx context.Context, subject int64) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if subject <= 0 {
		return ErrInvalidSubject
	}

	sub := strconv.FormatInt(subject, 10)
	res := e.flows.LogoutAll(ctx, sub)
	if res.Failure != flows.LogoutFailureNone {
		err := storeFailure(res.Err)
		e.reject(ctx, "logout_all", err, sub, "")
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, sub, "", nil, func() map[string]string {
		return map[string]string{"epoch": strconv.FormatInt(res.Epoch, 10)}
	})
	return nil
}

// RateLimit counts one hit against key under an explicit fixed window. A denied
// hit returns the decision together with [ErrRateLimitExceeded].
func (e *Engine) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if !e.ready() {
		return RateDecision{}, ErrEngineNotReady
	}
	return e.handleRateLimit(ctx, e.flows.CheckKey(ctx, key, rate.Policy{Limit: limit, Window: window}))
}

// CheckRoute counts one hit for (clientIP, route) under the route's configured
// policy, or the global policy for unlisted routes.
func (e *Engine) CheckRoute(ctx context.Context, clientIP, route string) (RateDecision, error) {
	if !e.ready() {
		return RateDecision{}, ErrEngineNotReady
	}
	return e.handleRateLimit(ctx, e.flows.CheckRoute(ctx, clientIP, route))
}

// RoutePolicy returns the policy CheckRoute applies to route.
func (e *Engine) RoutePolicy(route string) RatePolicy {
	if e == nil {
		return RatePolicy{}
	}
	if p, ok := e.config.RateLimit.Routes[route]; ok {
		return p
	}
	return e.config.RateLimit.Global
}

func (e *Engine) handleRateLimit(ctx context.Context, res flows.RateLimitResult) (RateDecision, error) {
	switch res.Failure {
	case flows.RateLimitFailureNone:
		e.metricInc(MetricRateLimitAllowed)
		return res.Decision, nil
	case flows.RateLimitFailureDenied:
		e.metricInc(MetricRateLimitDenied)
		e.logger.LogAttrs(ctx, slog.LevelInfo, "authcore: rate limited",
			slog.String("reason", ReasonRateLimitExceeded),
			slog.String("key", res.Key),
			slog.String("policy", res.Policy.String()),
		)
		e.emitAudit(ctx, AuditRateLimited, false, "", "", ErrRateLimitExceeded, func() map[string]string {
			return map[string]string{
				"key":         res.Key,
				"policy":      res.Policy.String(),
				"retry_after": res.Decision.RetryAfter.String(),
			}
		})
		return res.Decision, ErrRateLimitExceeded
	case flows.RateLimitFailurePolicy:
		return RateDecision{}, res.Err
	default:
		err := storeUnavailable(res.Err)
		e.reject(ctx, "rate_limit", err, "", "")
		return RateDecision{}, err
	}
}

func (e *Engine) pair(res flows.IssueResult) *TokenPair {
	return &TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    res.ExpiresIn,
	}
}

func (e *Engine) countValidateFailure(kind flows.ValidateFailureKind) {
	switch kind {
	case flows.ValidateFailureDecode:
		e.metricInc(MetricValidateUnauthenticated)
	case flows.ValidateFailureWrongType:
		e.metricInc(MetricValidateWrongType)
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricValidateRevoked)
	case flows.ValidateFailureMissingSubject:
		e.metricInc(MetricValidateMissingSubject)
	case flows.ValidateFailureSessionRevoked:
		e.metricInc(MetricValidateSessionRevoked)
	}
}

// reject logs a failed operation and records it in audit. Store outages and
// corrupt session state are errors; everything else is an expected security
// rejection.
func (e *Engine) reject(ctx context.Context, op string, err error, subject, tokenID string) {
	reason := Reason(err)
	level := slog.LevelInfo
	event := AuditTokenRejected
	switch reason {
	case ReasonStoreUnavailable:
		level = slog.LevelError
		event = AuditStoreUnavailable
		e.metricInc(MetricStoreUnavailable)
	case ReasonCorruptState:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("reason", reason),
	}
	if subject != "" {
		attrs = append(attrs, slog.String("subject", subject))
	}
	if level == slog.LevelError {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.logger.LogAttrs(ctx, level, "authcore: request rejected", attrs...)

	e.emitAudit(ctx, event, false, subject, tokenID, err, func() map[string]string {
		return map[string]string{"op": op}
	})
}

func mapValidateFailure(kind flows.ValidateFailureKind, cause error) error {
	switch kind {
	case flows.ValidateFailureDecode:
		return fmt.Errorf("%w: %w", ErrUnauthenticated, cause)
	case flows.ValidateFailureWrongType:
		return ErrWrongTokenType
	case flows.ValidateFailureRevoked:
		return ErrRevoked
	case flows.ValidateFailureMissingSubject:
		return ErrMissingSubject
	case flows.ValidateFailureSessionRevoked:
		return ErrSessionRevoked
	default:
		return storeFailure(cause)
	}
}

func mapIssueFailure(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureEncode:
		return fmt.Errorf("authcore: encode token: %w", res.Err)
	default:
		return storeFailure(res.Err)
	}
}

// storeFailure separates unreadable session state from an unreachable store.
func storeFailure(cause error) error {
	if errors.Is(cause, session.ErrCorruptEpoch) {
		return fmt.Errorf("%w: %w", ErrCorruptSessionState, cause)
	}
	return storeUnavailable(cause)
}

func storeUnavailable(cause error) error {
	if cause == nil {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
}

func claimIDs(c *jwt.Claims) (subject, tokenID string) {
	if c == nil {
		return "", ""
	}
	return c.Subject, c.ID
}
