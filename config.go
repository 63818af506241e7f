package authcore

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/bugforge/authcore/internal/rate"
	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/keys"
)

// Route names with built-in rate limit policies.
const (
	RouteLogin   = "login"
	RouteRefresh = "refresh"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Keys      KeysConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// SigningMethod is one of RS256 (default), RS384, RS512, PS256.
type JWTConfig struct {
	SigningMethod string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig locates the RSA keypair on disk.
//
// AllowEphemeralTestKeys lets Build generate an in-memory keypair when both files
// are absent. It is rejected in ProductionMode.
type KeysConfig struct {
	PrivateKeyPath         string
	PublicKeyPath          string
	AllowEphemeralTestKeys bool
	RSABits                int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig maps route names to fixed-window policies. Routes without an
// entry fall back to Global.
type RateLimitConfig struct {
	Prefix string
	Routes map[string]rate.Policy
	Global rate.Policy
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// CriticalWait bounds how long refresh reuse, logout-all and store outage
	// events wait for buffer space when DropIfFull is set. Negative disables
	// the wait.
	CriticalWait time.Duration
}

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by authcore APIs.
type SecurityConfig struct {
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: RS256, 15 minute access
// tokens, 7 day refresh tokens, strict key loading.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodRS256),
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Keys: KeysConfig{
			PrivateKeyPath: "keys/private.pem",
			PublicKeyPath:  "keys/public.pem",
			RSABits:        keys.DefaultRSABits,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
		},
		RateLimit: RateLimitConfig{
			Prefix: rate.DefaultPrefix,
			Routes: map[string]rate.Policy{
				RouteLogin:   {Limit: 5, Window: time.Minute},
				RouteRefresh: {Limit: 10, Window: time.Minute},
			},
			Global: rate.Policy{Limit: 100, Window: time.Minute},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:   1024,
			DropIfFull:   true,
			CriticalWait: 50 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.Routes = maps.Clone(cfg.RateLimit.Routes)
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch jwt.SigningMethod(strings.ToUpper(strings.TrimSpace(c.JWT.SigningMethod))) {
	case "", jwt.MethodRS256, jwt.MethodRS384, jwt.MethodRS512, jwt.MethodPS256:
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Keys
	if strings.TrimSpace(c.Keys.PrivateKeyPath) == "" || strings.TrimSpace(c.Keys.PublicKeyPath) == "" {
		return errors.New("Keys PrivateKeyPath and PublicKeyPath are required")
	}
	if c.Keys.RSABits != 0 && c.Keys.RSABits < keys.DefaultRSABits {
		return fmt.Errorf("Keys RSABits must be >= %d", keys.DefaultRSABits)
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Rate limit
	if err := c.RateLimit.Global.Validate(); err != nil {
		return fmt.Errorf("RateLimit Global: %w", err)
	}
	for route, p := range c.RateLimit.Routes {
		if strings.TrimSpace(route) == "" {
			return errors.New("RateLimit route name must not be empty")
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("RateLimit route %q: %w", route, err)
		}
	}
	if c.RateLimit.Prefix != "" && c.RateLimit.Prefix == c.Session.RedisPrefix {
		return errors.New("RateLimit Prefix must differ from Session RedisPrefix")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Security.ProductionMode {
		if c.Keys.AllowEphemeralTestKeys {
			return errors.New("ProductionMode forbids Keys AllowEphemeralTestKeys")
		}
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
	}

	return nil
}

// keyMode picks the key loading mode implied by the configuration.
func (c *Config) keyMode() keys.Mode {
	if c.Keys.AllowEphemeralTestKeys && !c.Security.ProductionMode {
		return keys.ModeEphemeralTest
	}
	return keys.ModeStrict
}
