// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// memRepo is an in-memory auth.UserRepository for tests. It mirrors the
// store contract: whitelist-validated filters, ErrNotFound on a miss,
// ErrAlreadyExists on a duplicate email, first match by id order.
type memRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]*auth.User)}
}

func (r *memRepo) FindBy(_ context.Context, field auth.UserField, value string) (*auth.User, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("field %q: %w", field, auth.ErrInvalidFilter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		u := r.users[id]
		if matchField(u, field, value) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%s=%q: %w", field, value, auth.ErrNotFound)
}

func matchField(u *auth.User, field auth.UserField, value string) bool {
	switch field {
	case auth.ByID:
		return u.ID.String() == value
	case auth.ByEmail:
		return u.Email == value
	case auth.BySessionToken:
		return u.SessionToken != nil && *u.SessionToken == value
	case auth.ByResetToken:
		return u.ResetToken != nil && *u.ResetToken == value
	}
	return false
}

func (r *memRepo) Add(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return fmt.Errorf("email %q: %w", user.Email, auth.ErrAlreadyExists)
		}
	}
	r.users[user.ID.String()] = user
	return nil
}

func (r *memRepo) Update(_ context.Context, id ulid.ULID, update auth.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id.String()]
	if !ok {
		return fmt.Errorf("id %q: %w", id, auth.ErrNotFound)
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

// failRepo returns the configured error from every method.
type failRepo struct {
	err error
}

func (r *failRepo) FindBy(context.Context, auth.UserField, string) (*auth.User, error) {
	return nil, r.err
}

func (r *failRepo) Add(context.Context, *auth.User) error { return r.err }

func (r *failRepo) Update(context.Context, ulid.ULID, auth.UserUpdate) error { return r.err }

var errStoreDown = errors.New("store unavailable")
