// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// nextBuildNumber increments and returns the monotonic per-project
// build counter spec.md §3's Run entity names, persisted as a single
// integer file under the data root. Not safe against concurrent
// invocations for the same project — spec.md §5 documents that as an
// accepted limitation ("the design assumes one run per (project,
// pipeline) at a time").
func nextBuildNumber(dataRoot, projectSlug string) (int, error) {
	dir := filepath.Join(dataRoot, projectSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating project data directory: %w", err)
	}
	path := filepath.Join(dir, ".build-number")

	current := 0
	if data, err := os.ReadFile(path); err == nil {
		current, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}
	next := current + 1

	if err := os.WriteFile(path, []byte(strconv.Itoa(next)), 0o644); err != nil {
		return 0, fmt.Errorf("persisting build number: %w", err)
	}
	return next, nil
}
