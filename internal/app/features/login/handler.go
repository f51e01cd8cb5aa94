// internal/app/features/login/handler.go

// Package login exchanges the operator password for a session cookie. The
// consoles render their own login screens; this is just the credential
// endpoint they post to.
package login

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/renewhub/internal/app/system/auth"
	"github.com/dalemusser/renewhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Handler handles login and logout requests.
type Handler struct {
	Auth    *auth.Manager
	Limiter *ratelimit.LoginLimiter
	Log     *zap.Logger
}

// NewHandler creates a login handler.
func NewHandler(am *auth.Manager, logger *zap.Logger) *Handler {
	return &Handler{Auth: am, Limiter: ratelimit.NewLoginLimiter(), Log: logger}
}

type loginRequest struct {
	Password string `json:"password"`
}

// ServeLogin handles POST /login.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if ok, reason := h.Limiter.Check(r); !ok {
		h.Log.Warn("login rate limited", zap.String("remote", r.RemoteAddr))
		http.Error(w, reason, http.StatusTooManyRequests)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	err := h.Auth.SignIn(w, r, req.Password)
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		h.Log.Info("operator login rejected", zap.String("remote", r.RemoteAddr))
		http.Error(w, "wrong password", http.StatusUnauthorized)
		return
	case err != nil:
		h.Log.Error("login failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.Limiter.ResetIP(r)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// ServeLogout handles POST /logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.SignOut(w, r); err != nil {
		h.Log.Error("logout failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
