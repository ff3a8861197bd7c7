// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
)

func testManager(t *testing.T) (*Manager, *runctx.Run) {
	t.Helper()
	root := t.TempDir()
	run := &runctx.Run{
		Project:     runctx.ProjectContext{Slug: "proj"},
		BuildNumber: 1,
		DataRoot:    filepath.Join(root, "data"),
		CacheRoot:   filepath.Join(root, "cache"),
	}
	return New(run, NewLedger()), run
}

func TestManagerBuildDirCreatesDirectory(t *testing.T) {
	t.Parallel()

	manager, run := testManager(t)
	dir, err := manager.BuildDir(run.StepID(0, 0, "build"))
	if err != nil {
		t.Fatalf("BuildDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be a directory, err = %v", dir, err)
	}
}

func TestManagerBuildDirCleanupRespectsCleanupOnExit(t *testing.T) {
	t.Parallel()

	manager, run := testManager(t)
	run.CleanupOnExit = false
	dir, err := manager.BuildDir(run.StepID(0, 0, "build"))
	if err != nil {
		t.Fatalf("BuildDir() error = %v", err)
	}

	manager.ledger.ReleaseAll(nil)

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected build dir to survive cleanup when CleanupOnExit=false, stat err = %v", err)
	}
}

func TestManagerBuildDirCleanupRemovesWhenRequested(t *testing.T) {
	t.Parallel()

	manager, run := testManager(t)
	run.CleanupOnExit = true
	dir, err := manager.BuildDir(run.StepID(0, 0, "build"))
	if err != nil {
		t.Fatalf("BuildDir() error = %v", err)
	}

	manager.ledger.ReleaseAll(nil)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected build dir to be removed when CleanupOnExit=true, stat err = %v", err)
	}
}

func TestManagerCacheDirIsStableAcrossCalls(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	first, err := manager.CacheDir("npm", "default")
	if err != nil {
		t.Fatalf("CacheDir() error = %v", err)
	}
	second, err := manager.CacheDir("npm", "default")
	if err != nil {
		t.Fatalf("CacheDir() error = %v", err)
	}
	if first != second {
		t.Errorf("CacheDir() not stable: %q != %q", first, second)
	}
}

func TestManagerSSHMaterialDirWritesBothKeyNames(t *testing.T) {
	t.Parallel()

	manager, run := testManager(t)
	dir, err := manager.SSHMaterialDir(run.StepID(0, 0, "build"), []byte("fake-key-material"))
	if err != nil {
		t.Fatalf("SSHMaterialDir() error = %v", err)
	}
	for _, name := range []string{"id_rsa", "id_rsa_tmp", "config"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestResolveUserVolumeRejectsMissingDirectory(t *testing.T) {
	t.Parallel()

	if _, err := ResolveUserVolume("/does/not/exist", "/mnt", false); err == nil {
		t.Fatal("expected an error for a nonexistent host path")
	}
}

func TestResolveUserVolumeRejectsFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveUserVolume(file, "/mnt", false); err == nil {
		t.Fatal("expected an error for a host path that is a regular file")
	}
}

func TestResolveUserVolumeAccepts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vol, err := ResolveUserVolume(dir, "/mnt", true)
	if err != nil {
		t.Fatalf("ResolveUserVolume() error = %v", err)
	}
	if vol.ContainerPath != "/mnt" || !vol.ReadOnly {
		t.Errorf("vol = %+v, want ContainerPath=/mnt ReadOnly=true", vol)
	}
}
