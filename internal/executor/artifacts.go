// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/pipeline-runner/internal/glob"
	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
)

// collectArtifacts evaluates every declared pattern against buildDir
// and copies matched files into destDir (the run's per-step artifact
// directory), preserving relative paths (spec.md §4.4 step 8).
// Zero-match non-escaping patterns are logged as warnings, not errors;
// per-file copy failures are collected and returned but do not stop
// the remaining patterns from being processed.
func collectArtifacts(logger *slog.Logger, buildDir, destDir string, patterns []string) ([]string, []error) {
	var collected []string
	var errs []error

	for _, pattern := range patterns {
		if glob.IsEscaping(pattern) {
			logger.Warn("artifact pattern escapes the build directory, skipping", "pattern", pattern)
			continue
		}

		matches, err := glob.Match(buildDir, pattern)
		if err != nil {
			errs = append(errs, &pipeerr.ArtifactCollectionError{Pattern: pattern, Err: err})
			continue
		}
		if len(matches) == 0 {
			logger.Warn("artifact pattern matched no files", "pattern", pattern)
			continue
		}

		for _, rel := range matches {
			src := filepath.Join(buildDir, rel)
			dst := filepath.Join(destDir, rel)
			if err := copyPreservingMode(src, dst); err != nil {
				errs = append(errs, &pipeerr.ArtifactCollectionError{Pattern: pattern, Path: rel, Err: err})
				continue
			}
			collected = append(collected, rel)
		}
	}

	return collected, errs
}

// rehydrateArtifacts copies every file previously collected from any
// earlier step (artifactRoot's immediate step subdirectories) into
// buildDir, preserving relative paths — spec.md §8's round-trip
// invariant.
func rehydrateArtifacts(artifactRoot, buildDir string) error {
	entries, err := os.ReadDir(artifactRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading artifact store: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stepDir := filepath.Join(artifactRoot, entry.Name())
		err := filepath.Walk(stepDir, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(stepDir, path)
			if err != nil {
				return err
			}
			return copyPreservingMode(path, filepath.Join(buildDir, rel))
		})
		if err != nil {
			return fmt.Errorf("rehydrating artifacts from %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func copyPreservingMode(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
