// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// ctxKey is unexported so no other package can collide with our context keys.
type ctxKey int

const userKey ctxKey = iota

// UserFromContext returns the identity resolved by RequireAuth, or nil
// for requests on excluded paths.
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userKey).(*auth.User)
	return user
}

// Middleware decision labels for the auth metrics.
const (
	decisionSkipped         = "skipped"
	decisionAuthenticated   = "authenticated"
	decisionUnauthenticated = "unauthenticated"
	decisionForbidden       = "forbidden"
)

// RequireAuth gates requests behind the configured authenticator.
// Excluded paths pass through untouched. A request with neither an
// Authorization header nor a session cookie is Unauthenticated (401);
// one whose credentials resolve to nobody is Forbidden (403). The
// resolved user rides the request context for downstream handlers.
func RequireAuth(authenticator auth.Authenticator, metrics *observability.Metrics) func(http.Handler) http.Handler {
	decide := func(result string) {
		if metrics != nil {
			metrics.AuthDecisions.WithLabelValues(result).Inc()
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.RequiresAuth(r.URL.Path) {
				decide(decisionSkipped)
				next.ServeHTTP(w, r)
				return
			}

			if authenticator.AuthorizationHeader(r) == "" && authenticator.SessionCookie(r) == "" {
				decide(decisionUnauthenticated)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				return
			}

			user := authenticator.CurrentUser(r.Context(), r)
			if user == nil {
				decide(decisionForbidden)
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
				return
			}

			decide(decisionAuthenticated)
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogging logs each request with method, path, status, and duration.
func RequestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
			)
		})
	}
}

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader records the status before delegating.
func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
