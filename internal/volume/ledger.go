// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume implements spec.md §4.2, the Volume & Path Manager:
// build directories, cache directories and their key derivation,
// artifact staging, SSH material, and user-defined bind mounts. Build
// directories, artifact staging and SSH material are tracked in a
// per-run ledger released in LIFO order on every exit path; cache
// directories and user-defined bind mounts are not ledgered, since
// they outlive the run. This replaces the teacher's language-specific scope-guard
// idiom (sandbox.OverlayManager.Cleanup, called via defer in
// sandbox.go) with an explicit ledger, per SPEC_FULL/spec.md §9.
package volume

import (
	"fmt"
	"log/slog"
	"sync"
)

// Ledger records cleanup functions for every resource a run
// allocates and releases them in LIFO order — last allocated, first
// released — mirroring nested-scope teardown semantics without
// relying on the call stack. A single Ledger is safe for concurrent
// use: steps in a parallel group, and the stream/wait goroutines
// within a single step, all register and may all be torn down from
// the cancellation path concurrently with normal completion.
type Ledger struct {
	mu      sync.Mutex
	entries []entry
}

type entry struct {
	description string
	cleanup     func() error
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Push records a cleanup function under a human-readable description
// (used in cleanup-failure log lines). The function will run during
// ReleaseAll, in reverse order of the Push calls.
func (l *Ledger) Push(description string, cleanup func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{description: description, cleanup: cleanup})
}

// ReleaseAll runs every recorded cleanup function in LIFO order,
// collecting (not stopping on) individual failures so that one
// stuck/failed release never prevents the rest of the run's
// resources from being reclaimed. The ledger is emptied regardless of
// outcome — ReleaseAll is idempotent after the first call.
func (l *Ledger) ReleaseAll(logger *slog.Logger) []error {
	l.mu.Lock()
	entries := l.entries
	l.entries = nil
	l.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.cleanup(); err != nil {
			wrapped := fmt.Errorf("releasing %s: %w", e.description, err)
			errs = append(errs, wrapped)
			if logger != nil {
				logger.Warn("resource cleanup failed", "resource", e.description, "error", err)
			}
		}
	}
	return errs
}
