package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bugforge/authcore"
)

// StatusFor maps an authcore error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authcore.ErrStoreUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, authcore.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, authcore.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, authcore.ErrUserInactive), authcore.IsSecurityRejection(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Detail string `json:"detail"`
	Reason string `json:"reason"`
}

// WriteError writes err as a JSON body with the status from StatusFor. Internal
// errors are reported without their message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Detail: http.StatusText(status),
		Reason: authcore.Reason(err),
	})
}
