// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the account and session flows over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Accounts is the slice of the account service the handlers consume.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	ValidateLogin(ctx context.Context, email, password string) bool
	CreateSession(ctx context.Context, email string) (string, error)
	ResolveSession(ctx context.Context, token string) (*auth.User, error)
	DestroySession(ctx context.Context, userID string) error
	IssueResetToken(ctx context.Context, email string) (string, error)
	RedeemReset(ctx context.Context, token, newPassword string) error
}

// Handler serves the account endpoints. Requests are form-encoded,
// responses JSON.
type Handler struct {
	accounts   Accounts
	cookieName string
	logger     *slog.Logger
	metrics    *observability.Metrics

	// sessions, when set, mirrors token lifecycle into the in-memory
	// session map so the session-auth middleware can resolve cookies
	// minted by Login. Nil outside session mode.
	sessions *auth.SessionManager
}

// NewHandler creates a Handler. metrics may be nil when the
// observability server is disabled; sessions may be nil outside
// session-auth mode.
func NewHandler(accounts Accounts, cookieName string, logger *slog.Logger, metrics *observability.Metrics, sessions *auth.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		accounts:   accounts,
		cookieName: cookieName,
		logger:     logger,
		metrics:    metrics,
		sessions:   sessions,
	}
}

// Home handles GET /, the landing page Logout redirects to. The path
// sits on the excluded list.
func (h *Handler) Home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

// Status reports service liveness; the path sits on the excluded list.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Register handles POST /users.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email missing"})
		return
	}
	if password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password missing"})
		return
	}

	_, err := h.accounts.Register(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyRegistered) {
			h.countRegistration("duplicate")
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
			return
		}
		h.countRegistration("error")
		errutil.LogError(h.logger, "registration failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	h.countRegistration("created")
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "user created"})
}

// Login handles POST /sessions: validates credentials, mints a session
// token, persists it on the user record, and sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if !h.accounts.ValidateLogin(r.Context(), email, password) {
		h.countLogin("failure")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	token, err := h.accounts.CreateSession(r.Context(), email)
	if err != nil || token == "" {
		if err != nil {
			errutil.LogError(h.logger, "session creation failed", err)
		}
		h.countLogin("failure")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})

	if h.sessions != nil {
		if user, resolveErr := h.accounts.ResolveSession(r.Context(), token); resolveErr == nil && user != nil {
			h.sessions.Record(token, user.ID.String())
		}
	}

	h.countLogin("success")
	if h.metrics != nil {
		h.metrics.SessionsCreated.Inc()
		if h.sessions != nil {
			h.metrics.ActiveSessions.Set(float64(h.sessions.Len()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "logged in"})
}

// Logout handles DELETE /sessions: resolves the session cookie and
// clears the stored token. An unresolvable session is Forbidden.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := h.sessionUser(r)
	if user == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}

	if err := h.accounts.DestroySession(r.Context(), user.ID.String()); err != nil {
		errutil.LogError(h.logger, "session destruction failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if h.sessions != nil {
		if cookie, cookieErr := r.Cookie(h.cookieName); cookieErr == nil {
			h.sessions.Remove(cookie.Value)
		}
	}

	if h.metrics != nil {
		h.metrics.SessionsDestroyed.Inc()
		if h.sessions != nil {
			h.metrics.ActiveSessions.Set(float64(h.sessions.Len()))
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Profile handles GET /profile. The session cookie is authoritative;
// without one the identity the middleware resolved (basic-auth mode)
// still serves.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := h.sessionUser(r)
	if user == nil {
		user = UserFromContext(r.Context())
	}
	if user == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

// IssueReset handles POST /reset_password. An unknown email is
// Forbidden; the issued token is returned to the caller, delivery
// (email or otherwise) is not this service's job.
func (h *Handler) IssueReset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	if email == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}

	token, err := h.accounts.IssueResetToken(r.Context(), email)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidTarget) {
			errutil.LogError(h.logger, "reset token issuance failed", err)
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "reset_token": token})
}

// RedeemReset handles PUT /reset_password, consuming the token.
func (h *Handler) RedeemReset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")
	if email == "" || token == "" || newPassword == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}

	if err := h.accounts.RedeemReset(r.Context(), token, newPassword); err != nil {
		if !errors.Is(err, auth.ErrInvalidTarget) {
			errutil.LogError(h.logger, "reset redemption failed", err)
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "Password updated"})
}

// sessionUser resolves the request's session cookie to a user, or nil.
func (h *Handler) sessionUser(r *http.Request) *auth.User {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := h.accounts.ResolveSession(r.Context(), cookie.Value)
	if err != nil {
		errutil.LogError(h.logger, "session resolution failed", err)
		return nil
	}
	return user
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countRegistration(outcome string) {
	if h.metrics != nil {
		h.metrics.Registrations.WithLabelValues(outcome).Inc()
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
