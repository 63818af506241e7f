package authcore

import (
	"context"
	"io"
	"log/slog"

	internalaudit "github.com/bugforge/authcore/internal/audit"
	internalmetrics "github.com/bugforge/authcore/internal/metrics"
	"github.com/bugforge/authcore/internal/rate"
	"github.com/bugforge/authcore/jwt"
)

// TokenType distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = jwt.TypeAccess
	TokenRefresh TokenType = jwt.TypeRefresh
)

func (t TokenType) String() string { return string(t) }

// Claims is the decoded payload returned by [Engine.Validate].
type Claims = jwt.Claims

// TokenPair is returned by [Engine.Issue] and [Engine.Rotate].
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// UserRecord is the minimal identity view the HTTP adapters need after a token
// has been validated.
type UserRecord struct {
	ID     int64
	Active bool
}

// UserLookup resolves an integer subject to an identity. Implementations return
// [ErrUserNotFound] when the id does not exist.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (UserRecord, error)
}

// RateDecision reports the outcome of one rate limiter hit.
type RateDecision = rate.Decision

// RatePolicy is a fixed-window limit: at most Limit hits per Window.
type RatePolicy = rate.Policy

// AuditEvent is a structured security event emitted through an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink

// Audit event types.
const (
	AuditTokenIssued          = internalaudit.EventTokenIssued
	AuditRefreshRotated       = internalaudit.EventRefreshRotated
	AuditRefreshReuseDetected = internalaudit.EventRefreshReuseDetected
	AuditTokenRejected        = internalaudit.EventTokenRejected
	AuditLogout               = internalaudit.EventLogout
	AuditLogoutAll            = internalaudit.EventLogoutAll
	AuditRateLimited          = internalaudit.EventRateLimited
	AuditStoreUnavailable     = internalaudit.EventStoreUnavailable
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink writes each audit event as one structured log record.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies an engine counter or latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricTokenIssued             = internalmetrics.MetricTokenIssued
	MetricIssueFailure            = internalmetrics.MetricIssueFailure
	MetricValidateSuccess         = internalmetrics.MetricValidateSuccess
	MetricValidateUnauthenticated = internalmetrics.MetricValidateUnauthenticated
	MetricValidateWrongType       = internalmetrics.MetricValidateWrongType
	MetricValidateRevoked         = internalmetrics.MetricValidateRevoked
	MetricValidateMissingSubject  = internalmetrics.MetricValidateMissingSubject
	MetricValidateSessionRevoked  = internalmetrics.MetricValidateSessionRevoked
	MetricRotateSuccess           = internalmetrics.MetricRotateSuccess
	MetricRotateFailure           = internalmetrics.MetricRotateFailure
	MetricRefreshReuseDetected    = internalmetrics.MetricRefreshReuseDetected
	MetricLogout                  = internalmetrics.MetricLogout
	MetricLogoutAll               = internalmetrics.MetricLogoutAll
	MetricRateLimitAllowed        = internalmetrics.MetricRateLimitAllowed
	MetricRateLimitDenied         = internalmetrics.MetricRateLimitDenied
	MetricStoreUnavailable        = internalmetrics.MetricStoreUnavailable
	MetricValidateLatency         = internalmetrics.MetricValidateLatency
	MetricRotateLatency           = internalmetrics.MetricRotateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
