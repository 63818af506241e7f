package authcore

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bugforge/authcore/keys"
	"github.com/redis/go-redis/v9"
)

var (
	testKeypairOnce sync.Once
	testKeypair     *keys.Keypair
	testKeypairErr  error
)

func sharedKeypair(tb testing.TB) *keys.Keypair {
	tb.Helper()
	testKeypairOnce.Do(func() {
		testKeypair, testKeypairErr = keys.Generate(keys.DefaultRSABits)
	})
	if testKeypairErr != nil {
		tb.Fatalf("generate keypair: %v", testKeypairErr)
	}
	return testKeypair
}

func newTestRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 7 * 24 * time.Hour
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	*Engine
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

func newTestEngine(tb testing.TB, cfg Config, opts ...func(*Builder)) testEngine {
	tb.Helper()

	mr, rdb := newTestRedis(tb)
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithKeypair(sharedKeypair(tb)).
		WithLogger(discardLogger())
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}
	tb.Cleanup(engine.Close)

	return testEngine{Engine: engine, mr: mr, rdb: rdb}
}
