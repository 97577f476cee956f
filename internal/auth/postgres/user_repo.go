// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements the auth repository contracts on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Pool is the subset of pgxpool.Pool the repository uses, kept
// narrow so pgxmock can stand in during tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, password_hash, session_token, reset_token, created_at, updated_at`

// FindBy returns the single user matching field = value. The field name
// is validated against the auth.UserField whitelist before it is
// interpolated, so no caller-supplied text ever reaches the SQL.
// ORDER BY id pins the "first match" order should the store ever hold
// more than one row for a token.
func (r *UserRepository) FindBy(ctx context.Context, field auth.UserField, value string) (*auth.User, error) {
	if !field.Valid() {
		return nil, oops.Code("STORE_INVALID_FILTER").
			With("field", string(field)).
			Wrap(auth.ErrInvalidFilter)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s = $1
		ORDER BY id
		LIMIT 1
	`, userColumns, string(field))

	row := r.pool.QueryRow(ctx, query, value)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("field", string(field)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With("field", string(field)).
			Wrap(err)
	}
	return user, nil
}

// Add persists a new user. A unique-index violation on email is mapped
// to auth.ErrAlreadyExists; the index, not a prior lookup, is the
// authority on duplicates.
func (r *UserRepository) Add(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, session_token, reset_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.SessionToken,
		user.ResetToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_ALREADY_EXISTS").
				With("email", user.Email).
				Wrap(auth.ErrAlreadyExists)
		}
		return oops.Code("USER_ADD_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// Update applies a partial update to the user. An empty update is a
// no-op beyond touching updated_at.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, update auth.UserUpdate) error {
	set := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	switch {
	case update.ClearSessionToken:
		set = append(set, "session_token = NULL")
	case update.SessionToken != nil:
		add("session_token", *update.SessionToken)
	}
	switch {
	case update.ClearResetToken:
		set = append(set, "reset_token = NULL")
	case update.ResetToken != nil:
		add("reset_token", *update.ResetToken)
	}

	args = append(args, id.String())
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&user.SessionToken,
		&user.ResetToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	return &user, nil
}
