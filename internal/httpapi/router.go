// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// NewRouter constructs the HTTP handler serving the Gatehouse API.
//
// Routes:
//
//	GET    /                → Handler.Home (excluded from auth)
//	GET    /status          → Handler.Status (excluded from auth)
//	POST   /users           → Handler.Register
//	POST   /sessions        → Handler.Login
//	DELETE /sessions        → Handler.Logout
//	GET    /profile         → Handler.Profile
//	POST   /reset_password  → Handler.IssueReset
//	PUT    /reset_password  → Handler.RedeemReset
//
// Middleware chain, applied in order: RequestLogging, then RequireAuth
// with the configured excluded paths.
func NewRouter(
	handler *Handler,
	authenticator auth.Authenticator,
	logger *slog.Logger,
	metrics *observability.Metrics,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestLogging(logger))
	r.Use(RequireAuth(authenticator, metrics))

	r.Get("/", handler.Home)
	r.Get("/status", handler.Status)
	r.Post("/users", handler.Register)
	r.Post("/sessions", handler.Login)
	r.Delete("/sessions", handler.Logout)
	r.Get("/profile", handler.Profile)
	r.Post("/reset_password", handler.IssueReset)
	r.Put("/reset_password", handler.RedeemReset)

	return r
}
