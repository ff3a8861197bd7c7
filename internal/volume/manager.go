// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
)

// Manager allocates and reclaims the host directories spec.md §4.2
// names. Every build, artifact-staging and SSH-material allocation is
// recorded on the run's Ledger, so callers never need to clean those up
// individually; cache directories and user volumes are left in place.
type Manager struct {
	run    *runctx.Run
	ledger *Ledger
}

// New creates a Manager bound to a run and its ledger.
func New(run *runctx.Run, ledger *Ledger) *Manager {
	return &Manager{run: run, ledger: ledger}
}

// BuildDir allocates the step's build directory: an empty host
// directory that becomes the container's working directory
// (spec.md §4.2). Removal at run end is governed by
// run.CleanupOnExit — by default build directories are kept under the
// run's output tree for inspection.
func (m *Manager) BuildDir(stepID string) (string, error) {
	dir := m.run.StepDir(stepID) + "/build"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("allocating build directory: %w", err)
	}
	m.ledger.Push(fmt.Sprintf("build directory %s", dir), func() error {
		if !m.run.CleanupOnExit {
			return nil
		}
		return os.RemoveAll(dir)
	})
	return dir, nil
}

// ArtifactStagingDir allocates the run's artifact store, the
// directory matched files are copied into after a step and rehydrated
// from before the next step (spec.md §4.2, §8).
func (m *Manager) ArtifactStagingDir() (string, error) {
	dir := m.run.OutputDir() + "/artifacts"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("allocating artifact staging directory: %w", err)
	}
	m.ledger.Push(fmt.Sprintf("artifact staging directory %s", dir), func() error {
		if !m.run.CleanupOnExit {
			return nil
		}
		return os.RemoveAll(dir)
	})
	return dir, nil
}

// StepArtifactDir is the directory this step's collected artifacts
// live under within the run's artifact store, preserving the step-id
// so downstream steps can tell which step produced what while still
// rehydrating everything flattened into the next build directory
// (spec.md §4.4 step 8).
func (m *Manager) StepArtifactDir(artifactRoot, stepID string) string {
	return filepath.Join(artifactRoot, stepID)
}

// CacheDir allocates (if necessary) and returns the host directory
// for a named cache at the given key. A cache
// directory persists across runs (spec.md §4.2) — it is intentionally
// NOT removed by the ledger; only build/artifact/ssh allocations are
// torn down at run end.
func (m *Manager) CacheDir(name, key string) (string, error) {
	dir := fmt.Sprintf("%s/%s-%s", m.run.CacheRootForProject(), name, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("allocating cache directory for %q: %w", name, err)
	}
	return dir, nil
}

// SSHMaterialDir allocates a temporary directory holding a copy of
// the user's private key material and a canonical ssh_config
// (spec.md §4.2, §6). privateKey is the raw key content; it is
// written as both id_rsa (0600) and id_rsa_tmp (0644), matching the
// two in-container paths spec.md §6 names — hosted agents historically
// exposed the key under both names for compatibility with scripts
// that reference either.
func (m *Manager) SSHMaterialDir(stepID string, privateKey []byte) (string, error) {
	dir := m.run.StepDir(stepID) + "/ssh"
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("allocating ssh material directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "id_rsa"), privateKey, 0o600); err != nil {
		return "", fmt.Errorf("writing id_rsa: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "id_rsa_tmp"), privateKey, 0o644); err != nil {
		return "", fmt.Errorf("writing id_rsa_tmp: %w", err)
	}

	config := "IdentityFile /opt/atlassian/pipelines/agent/ssh/id_rsa\nServerAliveInterval 180\n"
	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(config), 0o644); err != nil {
		return "", fmt.Errorf("writing ssh config: %w", err)
	}

	m.ledger.Push(fmt.Sprintf("ssh material directory %s", dir), func() error {
		return os.RemoveAll(dir)
	})
	return dir, nil
}

// UserVolume describes a validated custom host->container bind mount
// (spec.md §4.2's "User-defined volumes").
type UserVolume struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ResolveUserVolume validates that a user-declared bind mount's host
// side exists and returns the absolute path to mount. It is not
// ledgered — the host directory is owned by the user, not the run.
func ResolveUserVolume(hostPath, containerPath string, readOnly bool) (UserVolume, error) {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return UserVolume{}, fmt.Errorf("resolving volume source %q: %w", hostPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return UserVolume{}, fmt.Errorf("volume source %q: %w", hostPath, err)
	}
	if !info.IsDir() {
		return UserVolume{}, fmt.Errorf("volume source %q is not a directory", hostPath)
	}
	return UserVolume{HostPath: abs, ContainerPath: containerPath, ReadOnly: readOnly}, nil
}
