package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/cashcached/auth-api/internal/application/audit"
	"github.com/cashcached/auth-api/internal/application/auth"
	"github.com/cashcached/auth-api/internal/domain"
	"github.com/cashcached/auth-api/internal/pkg/validate"
	"github.com/cashcached/auth-api/internal/transport/http/middleware"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Register(r.Context(), req, requestMeta(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	middleware.SetSessionCookie(w, result.SessionID)
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		Token:    result.Token,
		Username: result.Username,
		Role:     result.Role,
		Message:  "account created",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Login(r.Context(), req, requestMeta(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if result.TwoFactorRequired {
		writeJSON(w, http.StatusOK, AuthEnvelope{
			Username:          result.Username,
			Role:              result.Role,
			Message:           "verification code sent",
			TwoFactorRequired: true,
		})
		return
	}
	middleware.SetSessionCookie(w, result.SessionID)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Token:    result.Token,
		Username: result.Username,
		Role:     result.Role,
		Message:  "login successful",
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.VerifyOTP(r.Context(), req, requestMeta(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	middleware.SetSessionCookie(w, result.SessionID)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Token:    result.Token,
		Username: result.Username,
		Role:     result.Role,
		Message:  "login successful",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.svc.Logout(r.Context(), p.SessionID)
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{
		Username: p.Username,
		Role:     p.Role,
		Email:    p.Email,
	})
}

func (h *AuthHandler) Activity(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := audit.Capacity
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.svc.RecentActivity(r.Context(), p.Username, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityEnvelope{Events: events})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req auth.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ChangePassword(r.Context(), p.Username, req); err != nil {
		writeDomainError(w, err)
		return
	}
	// The caller's own session was invalidated with the rest.
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}

// requestMeta captures client details for the audit trail.
func requestMeta(r *http.Request) auth.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return auth.RequestMeta{SourceIP: ip, UserAgent: r.UserAgent()}
}
