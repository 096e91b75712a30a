package handler

import (
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/service"

	"go.uber.org/zap"
)

// RequireSession rejects requests while the session is not authenticated.
// The data routes are only meaningful for a signed-in user.
func RequireSession(session *service.SessionStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session.State()
			if !state.IsAuthenticated {
				logger.Warn("session: request without an authenticated session",
					zap.String("path", r.URL.Path),
					zap.String("status", string(state.Status)),
				)
				writeError(w, http.StatusUnauthorized, domain.MsgUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
