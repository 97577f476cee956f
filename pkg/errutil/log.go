// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package errutil bridges oops errors into slog and test assertions.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// Attrs flattens an error into slog key/value pairs. Oops errors
// contribute their code and context map alongside the message; plain
// errors contribute only the message.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs an error with its structured context at error level.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// LogWarn logs an error with its structured context at warn level. Used
// on paths where the failure is absorbed rather than returned, such as
// credential resolution that degrades to an anonymous request.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, Attrs(err)...)
}
