// Package respond writes JSON responses and maps classified errors to HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
	LoginURL  string            `json:"login_url,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Status maps an error kind to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrStaleReference),
		errors.Is(err, apperr.ErrBookingConflict),
		errors.Is(err, apperr.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpload):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error renders err. Unclassified errors are logged and hidden behind a generic message.
func Error(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	status := Status(err)
	appErr, ok := apperr.As(err)
	if !ok {
		logger.WithContext(r.Context()).Error("unhandled request error", "error", err, "path", r.URL.Path)
		JSON(w, status, ErrorBody{Error: apperr.Code(nil), Message: "something went wrong, please try again"})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed", "error", err, "kind", apperr.Code(appErr.Kind), "path", r.URL.Path)
	}
	body := ErrorBody{
		Error:     apperr.Code(appErr.Kind),
		Message:   appErr.Message,
		Fields:    appErr.Fields,
		Details:   appErr.Details,
		Retryable: appErr.Retryable,
	}
	if url, ok := appErr.Details["login_url"].(string); ok {
		body.LoginURL = url
	}
	JSON(w, status, body)
}
