// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors shared across the auth layers. Repository
// implementations wrap these so errors.Is works through oops chains.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a unique constraint rejects an insert.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidFilter is returned when a lookup names an unknown user field.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrAlreadyRegistered is returned by Register when the email is taken.
	ErrAlreadyRegistered = errors.New("email already registered")

	// ErrInvalidTarget is returned when a reset or session token resolves to no user.
	ErrInvalidTarget = errors.New("invalid target")
)
