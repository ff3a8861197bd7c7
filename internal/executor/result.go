// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import "time"

// Result is spec.md §3's StepResult entity.
type Result struct {
	StepID          string
	StepName        string
	ExitCode        int
	StartedAt       time.Time
	EndedAt         time.Time
	Artifacts       []string
	CachesPersisted []string
	FailureReason   string
	Skipped         bool
}

// Succeeded reports whether the step's script exited zero and it was
// not skipped.
func (r Result) Succeeded() bool {
	return !r.Skipped && r.ExitCode == 0 && r.FailureReason == ""
}
