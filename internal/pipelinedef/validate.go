// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import "fmt"

// Validate checks a resolved pipeline (a selected []StepGroup, after
// Resolve) for structural issues beyond what Resolve itself already
// rejects. Returns a list of human-readable issues; an empty list
// means the pipeline is valid. Mirrors the teacher's lib/pipelinedef
// validate.go convention of collecting every issue instead of
// stopping at the first one, so the CLI can report them all at once.
func Validate(groups []StepGroup) []string {
	var issues []string

	if len(groups) == 0 {
		issues = append(issues, "pipeline has no steps (at least one step-group is required)")
	}

	stepNames := make(map[string]int)
	stepCount := 0
	for groupIndex, group := range groups {
		if group.Parallel && len(group.Steps) < 2 {
			issues = append(issues, fmt.Sprintf("group[%d]: parallel group must contain at least 2 steps, got %d", groupIndex, len(group.Steps)))
		}
		for _, step := range group.Steps {
			stepCount++
			prefix := fmt.Sprintf("group[%d] step %q", groupIndex, step.Name)

			if firstIndex, exists := stepNames[step.Name]; exists {
				issues = append(issues, fmt.Sprintf("%s: duplicate step name (first used in group[%d])", prefix, firstIndex))
			} else {
				stepNames[step.Name] = groupIndex
			}

			if step.Trigger != TriggerAutomatic && step.Trigger != TriggerManual {
				issues = append(issues, fmt.Sprintf("%s: trigger must be %q or %q, got %q", prefix, TriggerAutomatic, TriggerManual, step.Trigger))
			}

			if len(step.Script) == 0 {
				issues = append(issues, fmt.Sprintf("%s: script must not be empty", prefix))
			}

			if step.Size < 0 {
				issues = append(issues, fmt.Sprintf("%s: size must be positive, got %d", prefix, step.Size))
			}

			for _, service := range step.Services {
				if service.Name == "" {
					issues = append(issues, fmt.Sprintf("%s: service has no name", prefix))
				}
			}
		}
	}

	if stepCount == 0 && len(groups) > 0 {
		issues = append(issues, "pipeline selects no steps")
	}

	return issues
}
