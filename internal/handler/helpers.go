package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes the JSON body into dst, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// monthParam reads the optional ?month=YYYY-MM query parameter.
func monthParam(r *http.Request) (domain.MonthKey, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return "", nil
	}
	return domain.ParseMonth(raw)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var auth *domain.ErrAuth
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var app *domain.ErrApp
	var network *domain.ErrNetwork

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &auth):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, auth.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, domain.MsgNetworkError)
	case errors.As(err, &app):
		status := app.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		logger.Warn("backend rejected request", zap.Int("backend_status", app.Status), zap.String("error", app.Error()))
		writeError(w, status, app.Error())
	case errors.As(err, &network):
		logger.Error("backend unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, domain.MsgNetworkError)
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
