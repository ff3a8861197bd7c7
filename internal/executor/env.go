// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"sort"

	"github.com/bureau-foundation/pipeline-runner/internal/variables"
)

// buildEnviron composes a step container's final environment: the
// resolved five-tier variable set plus the per-step system facts that
// are not part of that precedence chain (step uuid, parallel-group
// position, deployment name, OIDC token) plus any extra entries a
// collaborator (dind, ssh-agent) contributes.
func buildEnviron(vars variables.Set, extra map[string]string, more ...[]string) []string {
	merged := make(map[string]string, len(vars)+len(extra))
	for name, resolved := range vars {
		merged[name] = resolved.Value
	}
	for name, value := range extra {
		merged[name] = value
	}

	out := make([]string, 0, len(merged))
	for name, value := range merged {
		out = append(out, name+"="+value)
	}
	for _, extraSlice := range more {
		out = append(out, extraSlice...)
	}
	sort.Strings(out)
	return out
}
