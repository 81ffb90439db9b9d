package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openloop/accounts/internal/service"
	"github.com/openloop/accounts/internal/validation"
)

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func apiSuccess(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, envelope{Message: message, Data: data})
}

func apiCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// apiServiceError maps the domain error taxonomy to HTTP statuses.
// Anything unrecognized (persistence failures included) becomes a
// generic 500 so storage details never leak.
func apiServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		apiError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountNotVerified):
		apiError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrInvalidSocialToken):
		apiError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		apiError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnknownProvider):
		apiError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, service.ErrPasswordConfirmation):
		apiError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apiError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmailAlreadyExists):
		apiError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidEmail):
		apiError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			apiError(w, http.StatusUnprocessableEntity, validationErr.Message)
			return
		}
		var confErr *validation.ConfigurationError
		if errors.As(err, &confErr) {
			slog.Error("validation misconfigured", "error", err)
			apiError(w, http.StatusInternalServerError, "internal error")
			return
		}
		slog.Error("request failed", "error", err)
		apiError(w, http.StatusInternalServerError, "internal error")
	}
}
