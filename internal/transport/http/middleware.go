package http

import (
	"log/slog"
	"net/http"

	"github.com/chevastian666/sistrau-sub000/internal/auth"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// AuthMiddleware gates every API route behind an X-API-Key header checked
// against the authenticator's key chain.
type AuthMiddleware struct {
	auth *auth.Authenticator
	log  *slog.Logger
}

func NewAuthMiddleware(a *auth.Authenticator, log *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{auth: a, log: log}
}

func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			metrics.AuthRejections.Add(1)
			writeError(w, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}

		if !m.auth.Validate(r.Context(), apiKey) {
			metrics.AuthRejections.Add(1)
			m.log.Warn("request with invalid api key",
				"method", r.Method, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
