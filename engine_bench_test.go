package authcore

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func BenchmarkValidateAccess(b *testing.B) {
	te := newTestEngine(b, testConfig())
	ctx := context.Background()

	pair, err := te.Issue(ctx, 1)
	if err != nil {
		b.Fatalf("issue: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.Validate(ctx, pair.AccessToken, TokenAccess); err != nil {
			b.Fatalf("validate: %v", err)
		}
	}
}

func BenchmarkRotate(b *testing.B) {
	te := newTestEngine(b, testConfig())
	ctx := context.Background()

	pair, err := te.Issue(ctx, 1)
	if err != nil {
		b.Fatalf("issue: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err = te.Rotate(ctx, pair.RefreshToken)
		if err != nil {
			b.Fatalf("rotate: %v", err)
		}
	}
}

func BenchmarkCheckRoute(b *testing.B) {
	cfg := testConfig()
	cfg.RateLimit.Global = RatePolicy{Limit: 1 << 30, Window: time.Hour}
	te := newTestEngine(b, cfg)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.CheckRoute(ctx, "10.0.0."+strconv.Itoa(i%250), "/items"); err != nil {
			b.Fatalf("check route: %v", err)
		}
	}
}
