package authcore

import (
	"errors"
	"testing"
	"time"

	"github.com/bugforge/authcore/internal/rate"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected default TTLs %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if p := cfg.RateLimit.Routes[RouteLogin]; p.Limit != 5 || p.Window != time.Minute {
		t.Fatalf("login policy %v", p)
	}
	if p := cfg.RateLimit.Routes[RouteRefresh]; p.Limit != 10 || p.Window != time.Minute {
		t.Fatalf("refresh policy %v", p)
	}
	if cfg.keyMode().String() != "strict" {
		t.Fatalf("default key mode %v", cfg.keyMode())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "jwt leeway valid",
			mutate:    func(c *Config) { c.JWT.Leeway = 45 * time.Second },
			wantValid: true,
		},
		{
			name:      "jwt leeway invalid",
			mutate:    func(c *Config) { c.JWT.Leeway = 3 * time.Minute },
			wantValid: false,
		},
		{
			name:      "jwt signing lower case accepted",
			mutate:    func(c *Config) { c.JWT.SigningMethod = "ps256" },
			wantValid: true,
		},
		{
			name:      "jwt signing symmetric rejected",
			mutate:    func(c *Config) { c.JWT.SigningMethod = "HS256" },
			wantValid: false,
		},
		{
			name:      "access ttl zero",
			mutate:    func(c *Config) { c.JWT.AccessTTL = 0 },
			wantValid: false,
		},
		{
			name:      "refresh shorter than access",
			mutate:    func(c *Config) { c.JWT.RefreshTTL = time.Minute },
			wantValid: false,
		},
		{
			name:      "missing key path",
			mutate:    func(c *Config) { c.Keys.PublicKeyPath = " " },
			wantValid: false,
		},
		{
			name:      "small rsa keys",
			mutate:    func(c *Config) { c.Keys.RSABits = 1024 },
			wantValid: false,
		},
		{
			name:      "empty redis prefix",
			mutate:    func(c *Config) { c.Session.RedisPrefix = "" },
			wantValid: false,
		},
		{
			name:      "rate prefix collides with session prefix",
			mutate:    func(c *Config) { c.RateLimit.Prefix = c.Session.RedisPrefix },
			wantValid: false,
		},
		{
			name: "route policy zero limit",
			mutate: func(c *Config) {
				c.RateLimit.Routes["upload"] = rate.Policy{Limit: 0, Window: time.Second}
			},
			wantValid: false,
		},
		{
			name:      "global policy zero window",
			mutate:    func(c *Config) { c.RateLimit.Global.Window = 0 },
			wantValid: false,
		},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "ephemeral keys outside production",
			mutate: func(c *Config) {
				c.Keys.AllowEphemeralTestKeys = true
			},
			wantValid: true,
		},
		{
			name: "production forbids ephemeral keys",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Keys.AllowEphemeralTestKeys = true
			},
			wantValid: false,
		},
		{
			name: "production access ttl cap",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.AccessTTL = time.Hour
			},
			wantValid: false,
		},
		{
			name: "production refresh ttl cap",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.RefreshTTL = 31 * 24 * time.Hour
			},
			wantValid: false,
		},
		{
			name:      "production defaults",
			mutate:    func(c *Config) { c.Security.ProductionMode = true },
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigCopiesRoutes(t *testing.T) {
	cfg := DefaultConfig()
	b := New().WithConfig(cfg)
	cfg.RateLimit.Routes[RouteLogin] = rate.Policy{Limit: 1, Window: time.Second}

	if got := b.config.RateLimit.Routes[RouteLogin].Limit; got != 5 {
		t.Fatalf("builder config aliased caller map, login limit = %d", got)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	def := DefaultConfig()
	if cfg.JWT != def.JWT || cfg.Keys != def.Keys || cfg.Session != def.Session {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
	if cfg.RateLimit.Routes[RouteLogin] != def.RateLimit.Routes[RouteLogin] {
		t.Fatalf("login policy %v", cfg.RateLimit.Routes[RouteLogin])
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_SIGNING_ALGORITHM", "rs512")
	t.Setenv("AUTHCORE_ACCESS_TOKEN_TTL", "300")
	t.Setenv("AUTHCORE_REFRESH_TOKEN_TTL", "72h")
	t.Setenv("AUTHCORE_PRIVATE_KEY_PATH", "/etc/authcore/private.pem")
	t.Setenv("AUTHCORE_PUBLIC_KEY_PATH", "/etc/authcore/public.pem")
	t.Setenv("AUTHCORE_ALLOW_INSECURE_TEST_KEYS", "true")
	t.Setenv("AUTHCORE_REDIS_PREFIX", "bugs")
	t.Setenv("AUTHCORE_RATE_LIMIT_LOGIN", "3/30s")
	t.Setenv("AUTHCORE_RATE_LIMIT_GLOBAL", "1000/60")
	t.Setenv("AUTHCORE_AUDIT_ENABLED", "1")
	t.Setenv("AUTHCORE_AUDIT_CRITICAL_WAIT", "250ms")

	cfg, err := ConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}

	if cfg.JWT.SigningMethod != "RS512" {
		t.Fatalf("signing method %q", cfg.JWT.SigningMethod)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute || cfg.JWT.RefreshTTL != 72*time.Hour {
		t.Fatalf("ttls %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Keys.PrivateKeyPath != "/etc/authcore/private.pem" || !cfg.Keys.AllowEphemeralTestKeys {
		t.Fatalf("keys %+v", cfg.Keys)
	}
	if cfg.Session.RedisPrefix != "bugs" {
		t.Fatalf("prefix %q", cfg.Session.RedisPrefix)
	}
	if p := cfg.RateLimit.Routes[RouteLogin]; p.Limit != 3 || p.Window != 30*time.Second {
		t.Fatalf("login policy %v", p)
	}
	if p := cfg.RateLimit.Global; p.Limit != 1000 || p.Window != time.Minute {
		t.Fatalf("global policy %v", p)
	}
	if !cfg.Audit.Enabled || cfg.Audit.CriticalWait != 250*time.Millisecond {
		t.Fatalf("audit %+v", cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config invalid: %v", err)
	}
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("AUTHCORE_RATE_LIMIT_REFRESH", "ten per minute")
	if _, err := ConfigFromEnv(nil); !errors.Is(err, rate.ErrInvalidPolicy) {
		t.Fatalf("bad policy: %v", err)
	}

	t.Setenv("AUTHCORE_RATE_LIMIT_REFRESH", "10/60s")
	t.Setenv("AUTHCORE_ACCESS_TOKEN_TTL", "soon")
	if _, err := ConfigFromEnv(nil); err == nil {
		t.Fatal("expected bad duration error")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want rate.Policy
		ok   bool
	}{
		{"5/60s", rate.Policy{Limit: 5, Window: time.Minute}, true},
		{" 10 / 1m ", rate.Policy{Limit: 10, Window: time.Minute}, true},
		{"100/60", rate.Policy{Limit: 100, Window: time.Minute}, true},
		{"0/60s", rate.Policy{}, false},
		{"5", rate.Policy{}, false},
		{"x/60s", rate.Policy{}, false},
		{"5/-1s", rate.Policy{}, false},
	}
	for _, tc := range tests {
		got, err := ParsePolicy(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: err = %v", tc.in, err)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
		}
	}
}
