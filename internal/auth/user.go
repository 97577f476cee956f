// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered account. Email is unique and matched
// case-sensitively as stored. SessionToken and ResetToken are each
// either nil or the single active value for the user; multi-session
// tracking is out of scope.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	SessionToken *string
	ResetToken   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with a fresh ULID. The password hash
// must already be computed; this constructor never sees plaintext.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_EMPTY_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail performs a minimal shape check. Full RFC validation is
// deliberately out of scope; the store's unique index is the real gate.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return oops.Code("USER_INVALID_EMAIL").
			With("email", email).
			Errorf("email must contain a local part and a domain")
	}
	return nil
}

// UserField names a column a lookup may filter on.
type UserField string

// Fields accepted by UserRepository.FindBy. Anything else is rejected
// with ErrInvalidFilter rather than silently matching nothing.
const (
	ByID           UserField = "id"
	ByEmail        UserField = "email"
	BySessionToken UserField = "session_token"
	ByResetToken   UserField = "reset_token"
)

// Valid reports whether the field is one a repository may filter on.
func (f UserField) Valid() bool {
	switch f {
	case ByID, ByEmail, BySessionToken, ByResetToken:
		return true
	}
	return false
}

// UserUpdate is a partial update of the mutable user fields. A nil
// pointer leaves the field untouched; Clear* forces the token column to
// NULL, which a plain nil pointer cannot express.
type UserUpdate struct {
	PasswordHash *string
	SessionToken *string
	ResetToken   *string

	ClearSessionToken bool
	ClearResetToken   bool
}

// Empty reports whether the update would change nothing.
func (u UserUpdate) Empty() bool {
	return u.PasswordHash == nil && u.SessionToken == nil && u.ResetToken == nil &&
		!u.ClearSessionToken && !u.ClearResetToken
}

// UserRepository is the credential store contract Gatehouse consumes.
// Implementations may back it with any store that enforces uniqueness by
// email and supports point lookups by each UserField.
type UserRepository interface {
	// FindBy returns the single user matching field = value.
	// Unknown fields yield ErrInvalidFilter; a miss yields ErrNotFound.
	// If the backing store could match several rows, the first by
	// store-native order is returned; callers must not depend on which.
	FindBy(ctx context.Context, field UserField, value string) (*User, error)

	// Add persists a new user. The store's unique index on email is the
	// authoritative duplicate check: a collision yields ErrAlreadyExists.
	Add(ctx context.Context, user *User) error

	// Update applies a partial update to the user with the given id.
	// Returns ErrNotFound if no such user exists.
	Update(ctx context.Context, id ulid.ULID, update UserUpdate) error
}
