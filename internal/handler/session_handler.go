package handler

import (
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Session: /v1/session
// ============================================================

func sessionStateHandler(session *service.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.State())
	}
}

func loginHandler(session *service.SessionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/login")
		defer span.End()

		var creds domain.LoginCredentials
		if !decodeBody(w, r, &creds) {
			return
		}

		if err := session.Login(ctx, creds); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, session.State())
	}
}

func registerHandler(session *service.SessionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/register")
		defer span.End()

		var data domain.RegisterData
		if !decodeBody(w, r, &data) {
			return
		}

		if err := session.Register(ctx, data); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, session.State())
	}
}

func logoutHandler(session *service.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/logout")
		defer span.End()

		session.Logout(ctx)
		w.WriteHeader(http.StatusNoContent)
	}
}

func refreshHandler(session *service.SessionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/refresh")
		defer span.End()

		if err := session.Refresh(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, session.State())
	}
}

func sessionClearErrorHandler(session *service.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session.ClearError()
		writeJSON(w, http.StatusOK, session.State())
	}
}

// ============================================================
// Preferences: /v1/preferences
// ============================================================

func getPreferencesHandler(prefs *service.PreferenceStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/preferences")
		defer span.End()

		p, err := prefs.Get(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func putPreferencesHandler(prefs *service.PreferenceStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/preferences")
		defer span.End()

		var p domain.Preferences
		if !decodeBody(w, r, &p) {
			return
		}
		if err := prefs.Set(ctx, p); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
