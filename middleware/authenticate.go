package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bugforge/authcore"
)

type userContextKey struct{}

// UserFromContext returns the identity resolved by Authenticate.
func UserFromContext(ctx context.Context) (authcore.UserRecord, bool) {
	u, ok := ctx.Value(userContextKey{}).(authcore.UserRecord)
	return u, ok
}

// Authenticate validates a bearer access token and resolves its subject through
// users. A missing user answers 404, an inactive one 401.
func Authenticate(engine TokenValidator, users authcore.UserLookup) func(http.Handler) http.Handler {
	guard := Guard(engine, authcore.TokenAccess)

	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := authcore.ClaimsFromContext(r.Context())
			if claims == nil || users == nil {
				WriteError(w, authcore.ErrEngineNotReady)
				return
			}

			id, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				WriteError(w, authcore.ErrMissingSubject)
				return
			}

			user, err := users.GetUserByID(r.Context(), id)
			if err != nil {
				WriteError(w, err)
				return
			}
			if !user.Active {
				WriteError(w, fmt.Errorf("%w: id %d", authcore.ErrUserInactive, id))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
		}))
	}
}
