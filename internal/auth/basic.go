// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// basicPrefix is the literal scheme marker, case-sensitive with exactly
// one following space.
const basicPrefix = "Basic "

// BasicAuth authenticates requests from HTTP Basic credentials in the
// Authorization header. Every malformed stage of the extraction chain
// degrades to "no identity"; nothing in here fails a request hard.
type BasicAuth struct {
	*NoAuth
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewBasicAuth creates a BasicAuth strategy.
func NewBasicAuth(base *NoAuth, users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*BasicAuth, error) {
	if base == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("base authenticator is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BasicAuth{
		NoAuth: base,
		users:  users,
		hasher: hasher,
		logger: logger,
	}, nil
}

// ExtractBase64 returns the base64 payload of a Basic authorization
// header, or "" when the header does not carry the Basic scheme.
func (a *BasicAuth) ExtractBase64(header string) string {
	if !strings.HasPrefix(header, basicPrefix) {
		return ""
	}
	return header[len(basicPrefix):]
}

// DecodeBase64 decodes the payload to UTF-8 text. Malformed input is
// swallowed into "".
func (a *BasicAuth) DecodeBase64(value string) string {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil || !utf8.Valid(decoded) {
		return ""
	}
	return string(decoded)
}

// SplitCredentials splits decoded text on the first colon. Text without
// a colon yields two empty strings; the password itself may contain
// colons.
func (a *BasicAuth) SplitCredentials(decoded string) (email, password string) {
	email, password, found := strings.Cut(decoded, ":")
	if !found {
		return "", ""
	}
	return email, password
}

// userFromCredentials resolves the credential tuple against the store.
// Store errors are swallowed; a corrupt stored hash is logged and
// treated as a mismatch.
func (a *BasicAuth) userFromCredentials(ctx context.Context, email, password string) *User {
	if email == "" || password == "" {
		return nil
	}

	user, err := a.users.FindBy(ctx, ByEmail, email)
	if err != nil {
		return nil
	}

	ok, err := a.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		errutil.LogWarn(a.logger, "stored password hash is unreadable", err)
		return nil
	}
	if !ok {
		return nil
	}
	return user
}

// CurrentUser resolves Basic credentials to a user identity. The chain
// short-circuits to nil at the first stage that fails.
func (a *BasicAuth) CurrentUser(ctx context.Context, r *http.Request) *User {
	header := a.AuthorizationHeader(r)
	if header == "" {
		return nil
	}
	payload := a.ExtractBase64(header)
	if payload == "" {
		return nil
	}
	decoded := a.DecodeBase64(payload)
	if decoded == "" {
		return nil
	}
	email, password := a.SplitCredentials(decoded)
	return a.userFromCredentials(ctx, email, password)
}
