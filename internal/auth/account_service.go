// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// AccountService implements registration, login validation, and the
// session and reset-token lifecycle over the credential store.
//
// Unlike SessionAuth's in-memory mapping, sessions minted here are
// persisted onto the user record: one active session per user, where a
// new login silently invalidates the previous token.
type AccountService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*AccountService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}, nil
}

// Register creates a new user with a hashed password. The store's
// unique index on email is the authoritative duplicate check: there is
// no lookup-then-insert race, the index's rejection is what becomes
// ErrAlreadyRegistered.
func (s *AccountService) Register(ctx context.Context, email, password string) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, hash)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "build user").
			Wrap(err)
	}

	if err := s.users.Add(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("USER_ALREADY_REGISTERED").
				With("email", email).
				Wrap(ErrAlreadyRegistered)
		}
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	return user, nil
}

// ValidateLogin reports whether the credentials belong to a registered
// user. An unknown email is false, never an error; a corrupt stored
// hash is logged and counts as a failed login.
func (s *AccountService) ValidateLogin(ctx context.Context, email, password string) bool {
	user, err := s.users.FindBy(ctx, ByEmail, email)
	if err != nil {
		return false
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		errutil.LogWarn(s.logger, "stored password hash is unreadable", err)
		return false
	}
	return ok
}

// CreateSession mints a session token for the user with the given email
// and persists it onto the user record, overwriting any prior token.
// Returns "" with a nil error when no such user exists.
func (s *AccountService) CreateSession(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindBy(ctx, ByEmail, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, err := NewToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, UserUpdate{SessionToken: &token}); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return token, nil
}

// ResolveSession returns the user holding the session token, or nil
// when the token is empty or maps to nobody.
func (s *AccountService) ResolveSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}

	user, err := s.users.FindBy(ctx, BySessionToken, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "find user by session token").
			Wrap(err)
	}
	return user, nil
}

// DestroySession clears the stored session token for the user. A
// missing user is a no-op, not an error.
func (s *AccountService) DestroySession(ctx context.Context, userID string) error {
	user, err := s.users.FindBy(ctx, ByID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "find user by id").
			Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, UserUpdate{ClearSessionToken: true}); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "clear session token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// IssueResetToken mints a password-reset token for the user with the
// given email and persists it, overwriting any prior token.
func (s *AccountService) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindBy(ctx, ByEmail, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_INVALID_TARGET").
				With("email", email).
				Wrap(ErrInvalidTarget)
		}
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, err := NewToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, UserUpdate{ResetToken: &token}); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "persist reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return token, nil
}

// RedeemReset rehashes the user's password from a valid reset token and
// clears the token, making it single-use.
func (s *AccountService) RedeemReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code("RESET_INVALID_TARGET").Wrap(ErrInvalidTarget)
	}

	user, err := s.users.FindBy(ctx, ByResetToken, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidFilter) {
			return oops.Code("RESET_INVALID_TARGET").Wrap(ErrInvalidTarget)
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	update := UserUpdate{PasswordHash: &hash, ClearResetToken: true}
	if err := s.users.Update(ctx, user.ID, update); err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}
