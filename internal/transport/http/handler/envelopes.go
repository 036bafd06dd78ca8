package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cashcached/auth-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps login/register/verify-otp responses.
type AuthEnvelope struct {
	Token             string `json:"token,omitempty"`
	Username          string `json:"username,omitempty"`
	Role              string `json:"role,omitempty"`
	Message           string `json:"message,omitempty"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	Error             string `json:"error,omitempty"`
}

// ProfileEnvelope wraps the authenticated principal echo.
type ProfileEnvelope struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// ActivityEnvelope wraps recent login events.
type ActivityEnvelope struct {
	Events []domain.LoginEvent `json:"events"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeDomainError maps a wrapped sentinel to an HTTP status. Authentication
// failures always render the same message regardless of internal cause.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, domain.InvalidCredentialsMessage)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "username or email already registered")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad request")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
