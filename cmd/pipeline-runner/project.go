// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
)

// discoverProject builds a ProjectContext from the git repository at
// root (spec.md §6: "Project context" is a collaborator input — the
// CLI is that collaborator). Missing git metadata (no remote, no
// commits yet) degrades to empty fields rather than failing the run.
func discoverProject(root string) (runctx.ProjectContext, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return runctx.ProjectContext{}, fmt.Errorf("resolving project root: %w", err)
	}

	branch := gitOutput(abs, "rev-parse", "--abbrev-ref", "HEAD")
	commit := gitOutput(abs, "rev-parse", "HEAD")
	remote := gitOutput(abs, "config", "--get", "remote.origin.url")

	owner, slug := parseRemote(remote)
	fullName := owner + "/" + slug
	if owner == "" {
		fullName = slug
	}
	if slug == "" {
		slug = filepath.Base(abs)
		fullName = slug
	}

	return runctx.ProjectContext{
		Slug:         runctx.Slugify(slug),
		Owner:        owner,
		FullName:     fullName,
		RootPath:     abs,
		Branch:       branch,
		Commit:       commit,
		RemoteOrigin: remote,
	}, nil
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// parseRemote extracts (owner, repo) from a git remote URL in either
// SSH (git@host:owner/repo.git) or HTTPS (https://host/owner/repo.git)
// form.
func parseRemote(remote string) (owner, repo string) {
	remote = strings.TrimSuffix(remote, ".git")
	if idx := strings.Index(remote, ":"); idx != -1 && !strings.Contains(remote, "://") {
		remote = remote[idx+1:]
	} else if idx := strings.Index(remote, "://"); idx != -1 {
		rest := remote[idx+3:]
		if slash := strings.Index(rest, "/"); slash != -1 {
			remote = rest[slash+1:]
		} else {
			remote = rest
		}
	}
	parts := strings.Split(remote, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2], parts[len(parts)-1]
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return "", ""
}
