package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bugforge/authcore"
	"github.com/bugforge/authcore/keys"
	"github.com/redis/go-redis/v9"
)

var (
	keypairOnce sync.Once
	keypair     *keys.Keypair
	keypairErr  error
)

type fixture struct {
	engine *authcore.Engine
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	keypairOnce.Do(func() {
		keypair, keypairErr = keys.Generate(keys.DefaultRSABits)
	})
	if keypairErr != nil {
		t.Fatalf("generate keypair: %v", keypairErr)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := authcore.DefaultConfig()
	cfg.RateLimit.Routes[authcore.RouteLogin] = authcore.RatePolicy{Limit: 2, Window: time.Minute}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithKeypair(keypair).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return fixture{engine: engine, mr: mr}
}

type users map[int64]authcore.UserRecord

func (u users) GetUserByID(_ context.Context, id int64) (authcore.UserRecord, error) {
	rec, ok := u[id]
	if !ok {
		return authcore.UserRecord{}, fmt.Errorf("%w: id %d", authcore.ErrUserNotFound, id)
	}
	return rec, nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authcore.ClaimsFromContext(r.Context())
		if !ok {
			t.Errorf("claims missing from context")
		}
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Errorf("user missing from context")
		}
		_, _ = fmt.Fprintf(w, "%s:%d", claims.Subject, user.ID)
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	directory := users{
		1: {ID: 1, Active: true},
		2: {ID: 2, Active: false},
	}
	h := Authenticate(f.engine, directory)(okHandler(t))

	active, err := f.engine.Issue(ctx, 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	inactive, err := f.engine.Issue(ctx, 2)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	missing, err := f.engine.Issue(ctx, 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := serve(h, "Bearer "+active.AccessToken)
	if rec.Code != http.StatusOK || rec.Body.String() != "1:1" {
		t.Fatalf("active user: %d %q", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"no header", "", http.StatusUnauthorized, authcore.ReasonUnauthenticated},
		{"wrong scheme", "Basic " + active.AccessToken, http.StatusUnauthorized, authcore.ReasonUnauthenticated},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized, authcore.ReasonMalformed},
		{"refresh token", "Bearer " + active.RefreshToken, http.StatusUnauthorized, authcore.ReasonWrongTokenType},
		{"inactive user", "Bearer " + inactive.AccessToken, http.StatusUnauthorized, authcore.ReasonUserInactive},
		{"missing user", "Bearer " + missing.AccessToken, http.StatusNotFound, authcore.ReasonUserNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.header)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if body := decodeBody(t, rec); body.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", body.Reason, tc.reason)
			}
			if tc.status == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAuthenticateAfterLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.engine.Issue(ctx, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.engine.LogoutAll(ctx, 7); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	h := Authenticate(f.engine, users{7: {ID: 7, Active: true}})(okHandler(t))
	rec := serve(h, "Bearer "+pair.AccessToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body.Reason != authcore.ReasonSessionRevoked {
		t.Fatalf("reason = %q", body.Reason)
	}
}

func TestAuthenticateStoreOutageIs503(t *testing.T) {
	f := newFixture(t)

	pair, err := f.engine.Issue(context.Background(), 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.mr.Close()

	h := Authenticate(f.engine, users{1: {ID: 1, Active: true}})(okHandler(t))
	rec := serve(h, "Bearer "+pair.AccessToken)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decodeBody(t, rec); body.Reason != authcore.ReasonStoreUnavailable {
		t.Fatalf("reason = %q", body.Reason)
	}
}

func TestGuardRefresh(t *testing.T) {
	f := newFixture(t)

	pair, err := f.engine.Issue(context.Background(), 5)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var subject string
	h := Guard(f.engine, authcore.TokenRefresh)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := authcore.ClaimsFromContext(r.Context())
		subject = claims.Subject
	}))

	if rec := serve(h, "bearer "+pair.RefreshToken); rec.Code != http.StatusOK || subject != "5" {
		t.Fatalf("refresh guard: %d subject=%q", rec.Code, subject)
	}
	if rec := serve(h, "Bearer "+pair.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token on refresh guard: %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	h := Guard(nil, authcore.TokenAccess)(http.NotFoundHandler())
	if rec := serve(h, "Bearer x"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRateLimitRoute(t *testing.T) {
	f := newFixture(t)

	calls := 0
	h := RateLimitRoute(f.engine, authcore.RouteLogin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := hit("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("hit %d: status %d", i, rec.Code)
		}
	}

	rec := hit("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third hit: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}

	// Other clients keep their own window.
	if rec := hit("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("other client: status %d", rec.Code)
	}

	f.mr.FastForward(time.Minute + time.Second)
	if rec := hit("10.0.0.1:5000"); rec.Code != http.StatusOK {
		t.Fatalf("after window: status %d", rec.Code)
	}
}

func TestRateLimitByPathStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	h := RateLimit(f.engine)(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	if got := ClientIP(req); got != "::1" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.RemoteAddr = "unix"
	if got := ClientIP(req); got != "unix" {
		t.Fatalf("ClientIP = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{authcore.ErrUnauthenticated, http.StatusUnauthorized},
		{authcore.ErrRevoked, http.StatusUnauthorized},
		{authcore.ErrStaleRefreshToken, http.StatusUnauthorized},
		{authcore.ErrUserInactive, http.StatusUnauthorized},
		{fmt.Errorf("lookup: %w", authcore.ErrUserNotFound), http.StatusNotFound},
		{authcore.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: dial", authcore.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{authcore.ErrEngineNotReady, http.StatusServiceUnavailable},
		{authcore.ErrCorruptSessionState, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := bearerToken(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", tc.in, got, ok)
		}
	}
}
