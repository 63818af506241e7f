package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bugforge/authcore"
)

// TokenValidator is the part of *authcore.Engine used by Guard.
type TokenValidator interface {
	Validate(ctx context.Context, token string, want authcore.TokenType) (*authcore.Claims, error)
}

// Guard rejects requests without a valid bearer token of type want. On success
// the claims are available through authcore.ClaimsFromContext.
func Guard(engine TokenValidator, want authcore.TokenType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, authcore.ErrUnauthenticated)
				return
			}

			claims, err := engine.Validate(r.Context(), token, want)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
