// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// Authenticator resolves request identity. One implementation per
// strategy (NoAuth, BasicAuth, SessionAuth); the strategy is chosen once
// from configuration and shared across requests.
type Authenticator interface {
	// RequiresAuth reports whether the path needs an authenticated
	// identity, given the configured excluded-path patterns.
	RequiresAuth(path string) bool

	// AuthorizationHeader returns the Authorization header value, or ""
	// when the request carries none.
	AuthorizationHeader(r *http.Request) string

	// SessionCookie returns the session cookie value, or "" when the
	// cookie is absent or no cookie name is configured.
	SessionCookie(r *http.Request) string

	// CurrentUser resolves the request to a user identity, or nil when
	// none can be established. Malformed credentials and store misses
	// degrade to nil rather than failing the request.
	CurrentUser(ctx context.Context, r *http.Request) *User
}

// PathRequiresAuth reports whether path is subject to authentication.
// The path is normalized with a trailing slash, then matched against
// each excluded pattern as an anchored regular expression (patterns may
// be regex fragments, so "/api/v1/stat.*" excludes a whole subtree).
// An empty path requires auth by default; a pattern that fails to
// compile is ignored, which also errs toward requiring auth.
func PathRequiresAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, pattern := range excluded {
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			continue
		}
		if re.MatchString(path) {
			return false
		}
	}
	return true
}

// NoAuth is the base authentication strategy: it answers the shared
// path and header questions but never resolves an identity. The other
// strategies embed it.
type NoAuth struct {
	cookieName string
	excluded   []string
}

// NewNoAuth creates the base strategy. cookieName may be empty when the
// deployment does not use session cookies.
func NewNoAuth(cookieName string, excludedPaths []string) *NoAuth {
	return &NoAuth{
		cookieName: cookieName,
		excluded:   excludedPaths,
	}
}

// RequiresAuth reports whether the path needs authentication, using the
// configured excluded-path patterns.
func (a *NoAuth) RequiresAuth(path string) bool {
	return PathRequiresAuth(path, a.excluded)
}

// AuthorizationHeader extracts the Authorization header from a request.
func (a *NoAuth) AuthorizationHeader(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Header.Get("Authorization")
}

// SessionCookie extracts the configured session cookie from a request.
func (a *NoAuth) SessionCookie(r *http.Request) string {
	if r == nil || a.cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// CurrentUser always resolves nobody for the base strategy.
func (a *NoAuth) CurrentUser(_ context.Context, _ *http.Request) *User {
	return nil
}
