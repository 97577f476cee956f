// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package errutil

import (
	"errors"
	"testing"

	"github.com/samber/oops"
)

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("THING_FAILED").Errorf("boom")
	AssertErrorCode(t, err, "THING_FAILED")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.Code("THING_FAILED").With("operation", "test").Errorf("boom")
	AssertErrorContext(t, err, "operation", "test")
}

func TestAssertErrorIsWithCode(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := oops.Code("THING_FAILED").Wrap(sentinel)
	AssertErrorIsWithCode(t, err, sentinel, "THING_FAILED")
}
