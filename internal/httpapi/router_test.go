// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/httpapi"
)

// userStore is an in-memory auth.UserRepository for router tests.
type userStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func (s *userStore) FindBy(_ context.Context, field auth.UserField, value string) (*auth.User, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("field %q: %w", field, auth.ErrInvalidFilter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		switch field {
		case auth.ByID:
			if u.ID.String() == value {
				return u, nil
			}
		case auth.ByEmail:
			if u.Email == value {
				return u, nil
			}
		case auth.BySessionToken:
			if u.SessionToken != nil && *u.SessionToken == value {
				return u, nil
			}
		case auth.ByResetToken:
			if u.ResetToken != nil && *u.ResetToken == value {
				return u, nil
			}
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) Add(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return auth.ErrAlreadyExists
		}
	}
	s.users[user.ID.String()] = user
	return nil
}

func (s *userStore) Update(_ context.Context, id ulid.ULID, update auth.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id.String()]
	if !ok {
		return auth.ErrNotFound
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	switch {
	case update.ClearSessionToken:
		u.SessionToken = nil
	case update.SessionToken != nil:
		u.SessionToken = update.SessionToken
	}
	switch {
	case update.ClearResetToken:
		u.ResetToken = nil
	case update.ResetToken != nil:
		u.ResetToken = update.ResetToken
	}
	return nil
}

// newTestServer wires the full stack in session-auth mode, the way the
// serve command does.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := &userStore{users: make(map[string]*auth.User)}
	hasher := auth.NewArgon2idHasher()

	accounts, err := auth.NewAccountService(store, hasher, nil)
	require.NoError(t, err)

	sessions := auth.NewSessionManager()
	base := auth.NewNoAuth(testCookie, testExcludedPaths)
	authenticator, err := auth.NewSessionAuth(base, store, sessions, nil)
	require.NoError(t, err)

	handler := httpapi.NewHandler(accounts, testCookie, nil, nil, sessions)
	router := httpapi.NewRouter(handler, authenticator, nil, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

var testExcludedPaths = []string{"/$", "/status/", "/users/", "/sessions/", "/reset_password/"}

// newBasicTestServer wires the stack in basic-auth mode. No session
// manager exists in this mode.
func newBasicTestServer(t *testing.T, store *userStore) *httptest.Server {
	t.Helper()

	hasher := auth.NewArgon2idHasher()
	accounts, err := auth.NewAccountService(store, hasher, nil)
	require.NoError(t, err)

	base := auth.NewNoAuth("", testExcludedPaths)
	authenticator, err := auth.NewBasicAuth(base, store, hasher, nil)
	require.NoError(t, err)

	handler := httpapi.NewHandler(accounts, testCookie, nil, nil, nil)
	router := httpapi.NewRouter(handler, authenticator, nil, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func jsonDecode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func postTo(t *testing.T, client *http.Client, rawURL string, values url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(rawURL, values)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouterSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	// Register
	resp := postTo(t, client, srv.URL+"/users", url.Values{"email": {"flow@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Duplicate registration is rejected
	resp = postTo(t, client, srv.URL+"/users", url.Values{"email": {"flow@example.com"}, "password": {"other"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Profile without a session is unauthorized at the middleware
	noSession, err := client.Get(srv.URL + "/profile")
	require.NoError(t, err)
	_ = noSession.Body.Close()
	require.Equal(t, http.StatusUnauthorized, noSession.StatusCode)

	// Login
	resp = postTo(t, client, srv.URL+"/sessions", url.Values{"email": {"flow@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]

	// Profile with the cookie
	profileReq, err := http.NewRequest(http.MethodGet, srv.URL+"/profile", nil)
	require.NoError(t, err)
	profileReq.AddCookie(session)
	profile, err := client.Do(profileReq)
	require.NoError(t, err)
	_ = profile.Body.Close()
	assert.Equal(t, http.StatusOK, profile.StatusCode)

	// Logout redirects home
	logoutReq, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions", nil)
	require.NoError(t, err)
	logoutReq.AddCookie(session)
	logout, err := client.Do(logoutReq)
	require.NoError(t, err)
	_ = logout.Body.Close()
	assert.Equal(t, http.StatusFound, logout.StatusCode)
	assert.Equal(t, "/", logout.Header.Get("Location"))

	// Following the redirect lands on the open home page
	landed, err := client.Get(srv.URL + logout.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, landed.StatusCode)
	var home map[string]string
	require.NoError(t, jsonDecode(landed, &home))
	assert.Equal(t, "Bienvenue", home["message"])

	// The session no longer resolves
	staleReq, err := http.NewRequest(http.MethodGet, srv.URL+"/profile", nil)
	require.NoError(t, err)
	staleReq.AddCookie(session)
	stale, err := client.Do(staleReq)
	require.NoError(t, err)
	_ = stale.Body.Close()
	assert.Equal(t, http.StatusForbidden, stale.StatusCode)
}

func TestRouterResetFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp := postTo(t, client, srv.URL+"/users", url.Values{"email": {"reset@example.com"}, "password": {"old"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Issue a reset token
	issue := postTo(t, client, srv.URL+"/reset_password", url.Values{"email": {"reset@example.com"}})
	require.Equal(t, http.StatusOK, issue.StatusCode)

	var issued map[string]string
	require.NoError(t, jsonDecode(issue, &issued))
	token := issued["reset_token"]
	require.NotEmpty(t, token)

	// Redeem it
	redeemReq, err := http.NewRequest(http.MethodPut, srv.URL+"/reset_password", strings.NewReader(url.Values{
		"email":        {"reset@example.com"},
		"reset_token":  {token},
		"new_password": {"brand-new"},
	}.Encode()))
	require.NoError(t, err)
	redeemReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	redeem, err := client.Do(redeemReq)
	require.NoError(t, err)
	_ = redeem.Body.Close()
	require.Equal(t, http.StatusOK, redeem.StatusCode)

	// Old password is dead, new one logs in
	old := postTo(t, client, srv.URL+"/sessions", url.Values{"email": {"reset@example.com"}, "password": {"old"}})
	assert.Equal(t, http.StatusUnauthorized, old.StatusCode)

	fresh := postTo(t, client, srv.URL+"/sessions", url.Values{"email": {"reset@example.com"}, "password": {"brand-new"}})
	assert.Equal(t, http.StatusOK, fresh.StatusCode)

	// Unknown email cannot get a token
	denied := postTo(t, client, srv.URL+"/reset_password", url.Values{"email": {"ghost@example.com"}})
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
}

func TestRouterStatusIsOpen(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterHomeIsOpen(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, jsonDecode(resp, &body))
	assert.Equal(t, "Bienvenue", body["message"])

	// Only the bare root is open, not everything under it
	denied, err := srv.Client().Get(srv.URL + "/profile")
	require.NoError(t, err)
	_ = denied.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)
}

func TestRouterBasicAuthMode(t *testing.T) {
	store := &userStore{users: make(map[string]*auth.User)}
	srv := newBasicTestServer(t, store)
	client := srv.Client()

	resp := postTo(t, client, srv.URL+"/users", url.Values{"email": {"basic@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("basic@example.com:pw"))

	t.Run("profile serves the header-authenticated user", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/profile", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", header)

		profile, err := client.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, profile.StatusCode)

		var body map[string]string
		require.NoError(t, jsonDecode(profile, &body))
		assert.Equal(t, "basic@example.com", body["email"])
	})

	t.Run("login works without a session manager", func(t *testing.T) {
		login := postTo(t, client, srv.URL+"/sessions", url.Values{"email": {"basic@example.com"}, "password": {"pw"}})
		require.Equal(t, http.StatusOK, login.StatusCode)
		assert.Len(t, login.Cookies(), 1)
	})

	t.Run("wrong password is forbidden", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/profile", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("basic@example.com:nope")))

		profile, err := client.Do(req)
		require.NoError(t, err)
		_ = profile.Body.Close()
		assert.Equal(t, http.StatusForbidden, profile.StatusCode)
	})
}
