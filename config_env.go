package authcore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bugforge/authcore/internal/rate"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by ConfigFromEnv.
const EnvPrefix = "AUTHCORE"

// Environment keys, without the AUTHCORE_ prefix.
const (
	envSigningAlgorithm  = "SIGNING_ALGORITHM"
	envAccessTokenTTL    = "ACCESS_TOKEN_TTL"
	envRefreshTokenTTL   = "REFRESH_TOKEN_TTL"
	envIssuer            = "ISSUER"
	envKeyID             = "KEY_ID"
	envPrivateKeyPath    = "PRIVATE_KEY_PATH"
	envPublicKeyPath     = "PUBLIC_KEY_PATH"
	envAllowInsecureKeys = "ALLOW_INSECURE_TEST_KEYS"
	envRSABits           = "RSA_BITS"
	envRedisPrefix       = "REDIS_PREFIX"
	envRateLimitPrefix   = "RATE_LIMIT_PREFIX"
	envRateLimitLogin    = "RATE_LIMIT_LOGIN"
	envRateLimitRefresh  = "RATE_LIMIT_REFRESH"
	envRateLimitGlobal   = "RATE_LIMIT_GLOBAL"
	envProductionMode    = "PRODUCTION_MODE"
	envMetricsEnabled    = "METRICS_ENABLED"
	envLatencyHistograms = "METRICS_LATENCY_HISTOGRAMS"
	envAuditEnabled      = "AUDIT_ENABLED"
	envAuditBufferSize   = "AUDIT_BUFFER_SIZE"
	envAuditDropIfFull   = "AUDIT_DROP_IF_FULL"
	envAuditCriticalWait = "AUDIT_CRITICAL_WAIT"
)

// ConfigFromEnv builds a Config from AUTHCORE_* environment variables layered
// over DefaultConfig. A nil v uses a fresh viper instance.
//
// Durations accept Go syntax ("15m", "168h") or a bare number of seconds. Rate
// limit policies are written as count/window, for example "5/60s".
func ConfigFromEnv(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	cfg := DefaultConfig()

	v.SetDefault(envSigningAlgorithm, cfg.JWT.SigningMethod)
	v.SetDefault(envAccessTokenTTL, cfg.JWT.AccessTTL.String())
	v.SetDefault(envRefreshTokenTTL, cfg.JWT.RefreshTTL.String())
	v.SetDefault(envIssuer, cfg.JWT.Issuer)
	v.SetDefault(envKeyID, cfg.JWT.KeyID)
	v.SetDefault(envPrivateKeyPath, cfg.Keys.PrivateKeyPath)
	v.SetDefault(envPublicKeyPath, cfg.Keys.PublicKeyPath)
	v.SetDefault(envAllowInsecureKeys, cfg.Keys.AllowEphemeralTestKeys)
	v.SetDefault(envRSABits, cfg.Keys.RSABits)
	v.SetDefault(envRedisPrefix, cfg.Session.RedisPrefix)
	v.SetDefault(envRateLimitPrefix, cfg.RateLimit.Prefix)
	v.SetDefault(envRateLimitLogin, formatPolicy(cfg.RateLimit.Routes[RouteLogin]))
	v.SetDefault(envRateLimitRefresh, formatPolicy(cfg.RateLimit.Routes[RouteRefresh]))
	v.SetDefault(envRateLimitGlobal, formatPolicy(cfg.RateLimit.Global))
	v.SetDefault(envProductionMode, cfg.Security.ProductionMode)
	v.SetDefault(envMetricsEnabled, cfg.Metrics.Enabled)
	v.SetDefault(envLatencyHistograms, cfg.Metrics.EnableLatencyHistograms)
	v.SetDefault(envAuditEnabled, cfg.Audit.Enabled)
	v.SetDefault(envAuditBufferSize, cfg.Audit.BufferSize)
	v.SetDefault(envAuditDropIfFull, cfg.Audit.DropIfFull)
	v.SetDefault(envAuditCriticalWait, cfg.Audit.CriticalWait.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var err error
	cfg.JWT.SigningMethod = strings.ToUpper(strings.TrimSpace(v.GetString(envSigningAlgorithm)))
	if cfg.JWT.AccessTTL, err = parseDuration(v.GetString(envAccessTokenTTL)); err != nil {
		return Config{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envAccessTokenTTL, err)
	}
	if cfg.JWT.RefreshTTL, err = parseDuration(v.GetString(envRefreshTokenTTL)); err != nil {
		return Config{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envRefreshTokenTTL, err)
	}
	cfg.JWT.Issuer = v.GetString(envIssuer)
	cfg.JWT.KeyID = v.GetString(envKeyID)

	cfg.Keys.PrivateKeyPath = v.GetString(envPrivateKeyPath)
	cfg.Keys.PublicKeyPath = v.GetString(envPublicKeyPath)
	cfg.Keys.AllowEphemeralTestKeys = v.GetBool(envAllowInsecureKeys)
	cfg.Keys.RSABits = v.GetInt(envRSABits)

	cfg.Session.RedisPrefix = v.GetString(envRedisPrefix)

	cfg.RateLimit.Prefix = v.GetString(envRateLimitPrefix)
	for route, key := range map[string]string{RouteLogin: envRateLimitLogin, RouteRefresh: envRateLimitRefresh} {
		p, err := ParsePolicy(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("%s_%s: %w", EnvPrefix, key, err)
		}
		cfg.RateLimit.Routes[route] = p
	}
	if cfg.RateLimit.Global, err = ParsePolicy(v.GetString(envRateLimitGlobal)); err != nil {
		return Config{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envRateLimitGlobal, err)
	}

	cfg.Security.ProductionMode = v.GetBool(envProductionMode)
	cfg.Metrics.Enabled = v.GetBool(envMetricsEnabled)
	cfg.Metrics.EnableLatencyHistograms = v.GetBool(envLatencyHistograms)
	cfg.Audit.Enabled = v.GetBool(envAuditEnabled)
	cfg.Audit.BufferSize = v.GetInt(envAuditBufferSize)
	cfg.Audit.DropIfFull = v.GetBool(envAuditDropIfFull)
	if cfg.Audit.CriticalWait, err = parseDuration(v.GetString(envAuditCriticalWait)); err != nil {
		return Config{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envAuditCriticalWait, err)
	}

	return cfg, nil
}

// ParsePolicy parses "count/window", e.g. "5/60s" or "100/1m". A window without a
// unit is read as seconds.
func ParsePolicy(s string) (rate.Policy, error) {
	count, window, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return rate.Policy{}, fmt.Errorf("%w: %q is not count/window", rate.ErrInvalidPolicy, s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return rate.Policy{}, fmt.Errorf("%w: bad count %q", rate.ErrInvalidPolicy, count)
	}
	d, err := parseDuration(window)
	if err != nil {
		return rate.Policy{}, fmt.Errorf("%w: bad window %q", rate.ErrInvalidPolicy, window)
	}
	p := rate.Policy{Limit: n, Window: d}
	if err := p.Validate(); err != nil {
		return rate.Policy{}, err
	}
	return p, nil
}

func formatPolicy(p rate.Policy) string {
	return strconv.Itoa(p.Limit) + "/" + p.Window.String()
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
