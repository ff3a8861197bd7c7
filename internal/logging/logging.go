// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging sets up the module's log/slog handler (SPEC_FULL
// §A.1): a text handler by default, a JSON handler under --json-logs,
// and a ReplaceAttr hook that masks any attribute value for a key the
// caller has flagged as a secret variable name.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// SecretPlaceholder replaces a masked value in terminal and file logs
// (spec.md §7: "Secrets in variables are replaced by a fixed
// placeholder in terminal and file logs").
const SecretPlaceholder = "********"

// Options configures the run-wide logger.
type Options struct {
	Writer      io.Writer
	JSON        bool
	Debug       bool
	SecretNames map[string]bool
}

// New builds the run's *slog.Logger.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactor(opts.SecretNames),
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Writer, handlerOpts)
	}
	return slog.New(handler)
}

// redactor returns a slog.HandlerOptions.ReplaceAttr function masking
// any attribute whose key matches a secret variable name, case
// insensitively, and any attribute whose key contains "password",
// "token", or "secret" regardless of the secret-name set —
// defense in depth against a collaborator forgetting to register a
// sensitive key.
func redactor(secretNames map[string]bool) func([]string, slog.Attr) slog.Attr {
	lowered := make(map[string]bool, len(secretNames))
	for name, secret := range secretNames {
		if secret {
			lowered[strings.ToLower(name)] = true
		}
	}
	return func(groups []string, attr slog.Attr) slog.Attr {
		key := strings.ToLower(attr.Key)
		if lowered[key] || strings.Contains(key, "password") || strings.Contains(key, "token") || strings.Contains(key, "secret") {
			return slog.String(attr.Key, SecretPlaceholder)
		}
		return attr
	}
}

// Discard is a logger that drops everything, used by tests that don't
// want to assert on log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
