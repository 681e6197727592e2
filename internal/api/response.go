package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/auth"
	"gwi.com/chattyagent/internal/core"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// M is shorthand for a data object.
type M map[string]any

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, `{"success":false,"message":"encode_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, Envelope{Success: false, Message: message, Errors: details})
}

// fail maps a service error to its status code and envelope. fallback is the
// message used for unexpected errors.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var inputErr *core.InputError
	switch {
	case errors.As(err, &inputErr):
		respondError(w, http.StatusBadRequest, inputErr.Message)
	case errors.Is(err, core.ErrWeakPassword),
		errors.Is(err, core.ErrFileTooLarge),
		errors.Is(err, core.ErrUnsupportedFileType):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrProjectNotFound),
		errors.Is(err, core.ErrChatNotFound),
		errors.Is(err, core.ErrFileNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateEmail),
		errors.Is(err, core.ErrDuplicateName):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrFileStorageDisabled):
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error(fallback, zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, fallback, h.details(err)...)
	}
}

// details exposes the raw error outside production only.
func (h *APIHandler) details(err error) []string {
	if h.production || err == nil {
		return nil
	}
	return []string{err.Error()}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &core.InputError{Message: "Invalid request body"}
	}
	return nil
}
