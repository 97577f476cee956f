// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the authentication core of Gatehouse.
//
// # Domain Types
//
// User is the single identity record. It carries a hashed password and at
// most one active session token and one active reset token. Users are
// persisted through the UserRepository contract; Gatehouse itself never
// parses raw SQL outside the repository implementations.
//
// # Authenticators
//
// Request authentication is polymorphic behind the Authenticator
// interface with one implementation per strategy:
//   - NoAuth - requires paths but never resolves an identity
//   - BasicAuth - HTTP Basic credentials from the Authorization header
//   - SessionAuth - opaque session cookie resolved via a SessionManager
//
// The strategy is selected once at process configuration time and held as
// shared read-mostly state.
//
// # Services
//
// AccountService layers the business rules (registration, login
// validation, session and reset-token lifecycle) on top of the hasher,
// token generator, and repository.
package auth
