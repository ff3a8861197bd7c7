// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package glob matches artifact patterns against a build directory,
// per spec.md §3/§4.4/§8. No library in the example corpus provides
// "**"-aware glob matching (see SPEC_FULL.md §B) so this is a small
// hand-rolled matcher built directly on path/filepath — intentionally
// narrow in scope (no brace expansion, no character classes beyond
// what filepath.Match already offers) rather than a general globbing
// engine.
//
// Semantics pinned here (spec.md §9 leaves these as an open question
// for the implementation to choose and document):
//   - "**" matches zero or more path segments, anywhere a segment
//     would otherwise be required; a pattern may use at most one "**".
//   - Symlinks to files are followed when they point within the build
//     directory and skipped (with no error) otherwise. Symlinked
//     directories are never descended into.
//   - Hidden files/directories (names starting with ".") are included
//     like any other entry — Bitbucket's own artifact globbing does
//     not special-case dotfiles.
//   - Empty directories never produce artifacts: only regular files
//     (after symlink resolution) are ever copied. A pattern that
//     resolves to a directory matches nothing.
//   - A pattern is rejected before evaluation (silently, per spec.md
//     §3's Artifact invariant) if, after cleaning, it is absolute or
//     begins with "~" (home-rooted) or contains a ".." segment that
//     would escape the build directory.
package glob

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IsEscaping reports whether pattern must be silently excluded per
// spec.md §3: absolute paths, "~"-rooted paths, and patterns whose
// cleaned form starts with "../" (escapes the build directory).
func IsEscaping(pattern string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasPrefix(pattern, "~") {
		return true
	}
	if filepath.IsAbs(pattern) {
		return true
	}
	cleaned := filepath.Clean(pattern)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return true
	}
	return false
}

// Match evaluates pattern against buildDir and returns the matched
// regular files' paths relative to buildDir, in lexical order.
// Returns an empty, non-error result for an escaping pattern or a
// pattern that matches nothing — per spec.md §8's boundary behaviour,
// neither is an error at this layer; the executor logs a warning for
// zero-match non-escaping patterns and silently drops escaping ones.
func Match(buildDir, pattern string) ([]string, error) {
	if IsEscaping(pattern) {
		return nil, nil
	}

	cleanPattern := filepath.Clean(pattern)
	segments := strings.Split(cleanPattern, string(filepath.Separator))

	var matches []string
	err := filepath.WalkDir(buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries (permission, races) are skipped rather
			// than aborting the whole collection pass.
			return nil
		}
		if path == buildDir {
			return nil
		}
		rel, relErr := filepath.Rel(buildDir, path)
		if relErr != nil {
			return nil
		}
		relSegments := strings.Split(rel, string(filepath.Separator))

		if !matchSegments(segments, relSegments) {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			root, rootErr := filepath.EvalSymlinks(buildDir)
			target, targetErr := filepath.EvalSymlinks(path)
			if rootErr != nil || targetErr != nil {
				return nil
			}
			within, withinErr := filepath.Rel(root, target)
			if withinErr != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
				return nil
			}
		}

		info, statErr := os.Stat(path) // follows symlinks
		if statErr != nil {
			// Broken symlink or race: not a match.
			return nil
		}
		if info.IsDir() {
			return nil
		}
		matches = append(matches, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// matchSegments reports whether path (split into segments) matches
// pattern (split into segments, possibly containing one "**"
// element). Each non-"**" segment is matched with filepath.Match,
// which supports "*", "?", and "[...]" character classes.
func matchSegments(pattern, path []string) bool {
	starIndex := -1
	for i, seg := range pattern {
		if seg == "**" {
			starIndex = i
			break
		}
	}

	if starIndex == -1 {
		if len(pattern) != len(path) {
			return false
		}
		for i := range pattern {
			ok, err := filepath.Match(pattern[i], path[i])
			if err != nil || !ok {
				return false
			}
		}
		return true
	}

	prefix := pattern[:starIndex]
	suffix := pattern[starIndex+1:]
	if len(path) < len(prefix)+len(suffix) {
		return false
	}
	for i, seg := range prefix {
		ok, err := filepath.Match(seg, path[i])
		if err != nil || !ok {
			return false
		}
	}
	pathSuffix := path[len(path)-len(suffix):]
	for i, seg := range suffix {
		ok, err := filepath.Match(seg, pathSuffix[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}
