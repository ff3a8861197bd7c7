// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package glob

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestIsEscaping(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"target/*.jar", false},
		{"*.log", false},
		{"/etc/passwd", true},
		{"~/secrets", true},
		{"../outside", true},
		{"a/../../outside", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := IsEscaping(tt.pattern); got != tt.want {
				t.Errorf("IsEscaping(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func buildTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestMatchExactSegments(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{
		"target/app.jar":    "x",
		"target/app.jar.sha": "x",
		"other/app.jar":     "x",
	})

	got, err := Match(root, "target/*.jar")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	want := []string{"target/app.jar"}
	if !equalSorted(got, want) {
		t.Errorf("Match() = %v, want %v", got, want)
	}
}

func TestMatchDoubleStar(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{
		"a/report.xml":       "x",
		"a/b/report.xml":     "x",
		"a/b/c/report.xml":   "x",
		"a/b/c/other.txt":    "x",
	})

	got, err := Match(root, "a/**/report.xml")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	// "**" matches zero or more segments, so a/report.xml itself (zero
	// segments between prefix and suffix) also matches.
	want := []string{"a/report.xml", "a/b/c/report.xml", "a/b/report.xml"}
	if !equalSorted(got, want) {
		t.Errorf("Match() = %v, want %v", got, want)
	}
}

func TestMatchDoubleStarMatchesZeroSegments(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{
		"report.xml":   "x",
		"a/report.xml": "x",
	})

	got, err := Match(root, "**/report.xml")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	want := []string{"a/report.xml", "report.xml"}
	if !equalSorted(got, want) {
		t.Errorf("Match() = %v, want %v", got, want)
	}
}

func TestMatchNeverReturnsDirectories(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{
		"target/nested/file.txt": "x",
	})

	got, err := Match(root, "target/*")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Match() = %v, want no matches (target/nested is a directory)", got)
	}
}

func TestMatchEscapingPatternReturnsNoError(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{"file.txt": "x"})

	got, err := Match(root, "../escape")
	if err != nil {
		t.Fatalf("Match() error = %v, want nil for an escaping pattern", err)
	}
	if got != nil {
		t.Errorf("Match() = %v, want nil", got)
	}
}

func TestMatchNoMatchesIsNotAnError(t *testing.T) {
	t.Parallel()

	root := buildTree(t, map[string]string{"file.txt": "x"})

	got, err := Match(root, "nonexistent/*.log")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Match() = %v, want no matches", got)
	}
}

func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}
