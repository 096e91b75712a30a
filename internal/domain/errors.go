package domain

import (
	"errors"
	"fmt"
)

// Error types shared by the REST client, the aggregators and the HTTP adapter.

// User-facing fallback messages, kept in the backend's language.
const (
	MsgNetworkError = "Erro de conexão. Verifique sua internet."
	MsgUnauthorized = "Sessão expirada. Faça login novamente."
	MsgUnknownError = "Erro desconhecido."
)

// ErrNetwork indicates a transport failure (no HTTP response was received).
type ErrNetwork struct {
	Err error
}

func (e *ErrNetwork) Error() string {
	if e.Err == nil {
		return MsgNetworkError
	}
	return fmt.Sprintf("%s (%v)", MsgNetworkError, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrAuth indicates a missing, rejected or expired token.
type ErrAuth struct {
	Message string
	Status  int
}

func (e *ErrAuth) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return MsgUnauthorized
}

// ErrApp is a generic API failure carrying the backend message.
type ErrApp struct {
	Status  int
	Code    string
	Message string
}

func (e *ErrApp) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// ErrValidation indicates a client-side validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrNotFound indicates a resource was not found in local state.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService wraps a failure of a backend call with the resource it targeted.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// Message converts any error into the human-readable string stored in
// aggregator state. Wrappers are peeled so the user sees the backend message.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var app *ErrApp
	var auth *ErrAuth
	var network *ErrNetwork
	var validation *ErrValidation
	var circuit *ErrCircuitOpen

	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &auth):
		return auth.Error()
	case errors.As(err, &app):
		return app.Error()
	case errors.As(err, &network):
		return MsgNetworkError
	case errors.As(err, &circuit):
		return MsgNetworkError
	default:
		return err.Error()
	}
}
