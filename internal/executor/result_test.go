// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import "testing"

func TestResultSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{"zero exit", Result{ExitCode: 0}, true},
		{"nonzero exit", Result{ExitCode: 1}, false},
		{"skipped", Result{Skipped: true}, false},
		{"failure reason set despite zero exit", Result{ExitCode: 0, FailureReason: "timed out"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Succeeded(); got != tt.want {
				t.Errorf("Succeeded() = %v, want %v", got, tt.want)
			}
		})
	}
}
