// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/samber/oops"
)

// SessionManager owns the in-memory mapping of session token to user id.
// The map is constructed here and never shared; a mutex serializes
// writers so concurrent logins and logouts cannot corrupt it. Entries
// never expire on their own and are removed only by Destroy.
type SessionManager struct {
	mu      sync.RWMutex
	byToken map[string]string
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{byToken: make(map[string]string)}
}

// Create mints a session token for the user and records the mapping.
func (m *SessionManager) Create(userID string) (string, error) {
	if userID == "" {
		return "", oops.Code("SESSION_INVALID_USER").Errorf("user id cannot be empty")
	}

	token, err := NewToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	m.mu.Lock()
	m.byToken[token] = userID
	m.mu.Unlock()
	return token, nil
}

// Record inserts a mapping for an externally minted token, so sessions
// persisted by the account service are also resolvable here.
func (m *SessionManager) Record(token, userID string) {
	if token == "" || userID == "" {
		return
	}
	m.mu.Lock()
	m.byToken[token] = userID
	m.mu.Unlock()
}

// UserID returns the user id mapped to the session token.
func (m *SessionManager) UserID(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	m.mu.RLock()
	userID, ok := m.byToken[token]
	m.mu.RUnlock()
	return userID, ok
}

// Remove deletes the mapping for the token, reporting whether it existed.
func (m *SessionManager) Remove(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[token]; !ok {
		return false
	}
	delete(m.byToken, token)
	return true
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}

// SessionAuth authenticates requests from an opaque session cookie. The
// cookie value maps to a user id through the SessionManager, then to a
// user record through the store.
type SessionAuth struct {
	*NoAuth
	users    UserRepository
	sessions *SessionManager
	logger   *slog.Logger
}

// NewSessionAuth creates a SessionAuth strategy.
func NewSessionAuth(base *NoAuth, users UserRepository, sessions *SessionManager, logger *slog.Logger) (*SessionAuth, error) {
	if base == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("base authenticator is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuth{
		NoAuth:   base,
		users:    users,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// CreateSession mints a session for the user id and returns the token.
func (a *SessionAuth) CreateSession(userID string) (string, error) {
	return a.sessions.Create(userID)
}

// UserIDForSession returns the user id behind a session token.
func (a *SessionAuth) UserIDForSession(token string) (string, bool) {
	return a.sessions.UserID(token)
}

// CurrentUser resolves the session cookie to a user record. A missing
// cookie, unmapped token, or store miss all degrade to nil.
func (a *SessionAuth) CurrentUser(ctx context.Context, r *http.Request) *User {
	token := a.SessionCookie(r)
	userID, ok := a.sessions.UserID(token)
	if !ok {
		return nil
	}

	user, err := a.users.FindBy(ctx, ByID, userID)
	if err != nil {
		return nil
	}
	return user
}

// DestroySession removes the session identified by the request's cookie.
// Returns false, not an error, when the cookie is absent or unmapped.
func (a *SessionAuth) DestroySession(r *http.Request) bool {
	token := a.SessionCookie(r)
	if token == "" {
		return false
	}
	return a.sessions.Remove(token)
}
