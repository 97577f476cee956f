// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of a minted token. 32 bytes hex-encode to
// 64 characters, well past the 128-bit floor for negligible collisions.
const TokenBytes = 32

// NewToken returns a cryptographically random opaque token. Tokens carry
// no decodable structure and are used only as lookup keys (session ids,
// reset tokens).
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
