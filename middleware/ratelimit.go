package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/bugforge/authcore"
)

// RouteLimiter is the part of *authcore.Engine used by the rate limit handlers.
type RouteLimiter interface {
	CheckRoute(ctx context.Context, clientIP, route string) (authcore.RateDecision, error)
}

// RateLimit counts each request against (client address, URL path).
func RateLimit(engine RouteLimiter) func(http.Handler) http.Handler {
	return rateLimit(engine, func(r *http.Request) string { return r.URL.Path })
}

// RateLimitRoute counts each request against a fixed route name, such as
// authcore.RouteLogin, so the route's configured policy applies.
func RateLimitRoute(engine RouteLimiter, route string) func(http.Handler) http.Handler {
	return rateLimit(engine, func(*http.Request) string { return route })
}

func rateLimit(engine RouteLimiter, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			ip := ClientIP(r)
			d, err := engine.CheckRoute(r.Context(), ip, route(r))
			if err != nil {
				if d.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				}
				WriteError(w, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
			next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), ip)))
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. Proxy headers are not
// trusted; put a proxy-aware handler in front when needed.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
