package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/bugforge/authcore/internal/audit"
	"github.com/bugforge/authcore/internal/flows"
	"github.com/bugforge/authcore/internal/rate"
	"github.com/bugforge/authcore/jwt"
	"github.com/bugforge/authcore/keys"
	"github.com/bugforge/authcore/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authcore APIs.
//
// A Builder is single-use: Build may succeed at most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keypair   *keys.Keypair
	logger    *slog.Logger
	auditSink AuditSink

	newTokenID func() string

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store. Any go-redis client works, including
// *redis.Client, *redis.ClusterClient and *redis.Ring.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeypair supplies an already loaded keypair. Key paths in the
// configuration are then ignored.
func (b *Builder) WithKeypair(kp *keys.Keypair) *Builder {
	b.keypair = kp
	return b
}

// WithLogger sets the structured logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink enables audit dispatch to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles metric recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate and rotate latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithTokenIDGenerator overrides token id minting. Ids must be unique; the
// default is a random UUID.
func (b *Builder) WithTokenIDGenerator(fn func() string) *Builder {
	b.newTokenID = fn
	return b
}

// Build validates the configuration, loads keys and wires the engine.
//
// Key loading failures are returned as [ErrKeysMissing] or [ErrKeysUnreadable]
// and are meant to stop the process.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- KEYS --------
	kp := b.keypair
	if kp == nil {
		loader := keys.NewLoader(cfg.keyMode(), logger).WithRSABits(cfg.Keys.RSABits)
		loaded, err := loader.Load(cfg.Keys.PrivateKeyPath, cfg.Keys.PublicKeyPath)
		if err != nil {
			logger.Error("authcore: key loading failed",
				slog.String("reason", Reason(err)),
				slog.String("private_key_path", cfg.Keys.PrivateKeyPath),
				slog.String("public_key_path", cfg.Keys.PublicKeyPath),
			)
			return nil, err
		}
		kp = loaded
	}
	if kp.Ephemeral() && cfg.Security.ProductionMode {
		return nil, errors.New("ProductionMode forbids ephemeral keys")
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    kp.PrivateKey(),
		PublicKey:     kp.PublicKey(),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	// -------- STORES --------
	store := session.NewStore(b.redis, cfg.Session.RedisPrefix)
	limiter := rate.New(b.redis, cfg.RateLimit.Prefix)

	newTokenID := b.newTokenID
	if newTokenID == nil {
		newTokenID = uuid.NewString
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		logger:       logger,
		keypair:      kp,
		jwtManager:   jm,
		sessionStore: store,
		rateLimiter:  limiter,
		metrics:      NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			CriticalWait: cfg.Audit.CriticalWait,
		}, b.auditSink),
	}
	engine.flows = flows.New(engine.buildFlowDeps(newTokenID))

	b.built = true

	logger.Info("authcore: engine ready",
		slog.String("signing_method", string(jm.Method())),
		slog.Bool("ephemeral_keys", kp.Ephemeral()),
		slog.Bool("production_mode", cfg.Security.ProductionMode),
	)

	return engine, nil
}

func (e *Engine) buildFlowDeps(newTokenID func() string) flows.Deps {
	validate := flows.ValidateDeps{
		Decode:       e.jwtManager.Decode,
		SessionStore: e.sessionStore,
	}
	issue := flows.IssueDeps{
		Codec:        e.jwtManager,
		SessionStore: e.sessionStore,
		NewTokenID:   newTokenID,
		AccessTTL:    e.config.JWT.AccessTTL,
		RefreshTTL:   e.config.JWT.RefreshTTL,
	}

	return flows.Deps{
		Issue:    issue,
		Validate: validate,
		Rotate: flows.RotateDeps{
			Validate:     validate,
			Issue:        issue,
			SessionStore: e.sessionStore,
			Now:          time.Now,
			Warn:         e.logger.Warn,
		},
		Logout: flows.LogoutDeps{
			Validate:     validate,
			SessionStore: e.sessionStore,
			Now:          time.Now,
		},
		RateLimit: flows.RateLimitDeps{
			Limiter:  e.rateLimiter,
			Routes:   e.config.RateLimit.Routes,
			Fallback: e.config.RateLimit.Global,
		},
		Introspection: flows.IntrospectionDeps{
			SessionStore:      e.sessionStore,
			EngineNotReadyErr: ErrEngineNotReady,
		},
	}
}
