// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runctx

import (
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Build & Test", "build-test"},
		{"deploy:prod", "deploy-prod"},
		{"already-slug", "already-slug"},
		{"---", "step"},
		{"", "step"},
		{"Über Café", "ber-caf"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Slugify(tt.input)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRunStepID(t *testing.T) {
	t.Parallel()

	run := &Run{Project: ProjectContext{Slug: "my-repo"}, BuildNumber: 42}

	got := run.StepID(0, 1, "Run Tests")
	want := "my-repo-42-0-1-run-tests"
	if got != want {
		t.Errorf("StepID() = %q, want %q", got, want)
	}
}

func TestRunOutputPaths(t *testing.T) {
	t.Parallel()

	run := &Run{
		Project:     ProjectContext{Slug: "my-repo"},
		BuildNumber: 7,
		DataRoot:    "/data",
		CacheRoot:   "/cache",
	}

	if got, want := run.OutputDir(), "/data/my-repo/7"; got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
	if got, want := run.PipelineLogPath(), "/data/my-repo/7/pipeline.log"; got != want {
		t.Errorf("PipelineLogPath() = %q, want %q", got, want)
	}
	if got, want := run.StepDir("step-1"), "/data/my-repo/7/steps/step-1"; got != want {
		t.Errorf("StepDir() = %q, want %q", got, want)
	}
	if got, want := run.CacheRootForProject(), "/cache/my-repo"; got != want {
		t.Errorf("CacheRootForProject() = %q, want %q", got, want)
	}
	if got, want := run.DockerVolumeName(), "pipeline-runner-my-repo-docker"; got != want {
		t.Errorf("DockerVolumeName() = %q, want %q", got, want)
	}
}

func TestContainerName(t *testing.T) {
	t.Parallel()

	a := ContainerName("step-1", "")
	b := ContainerName("step-1", "")
	if a == b {
		t.Error("expected distinct suffixes across calls")
	}

	withRole := ContainerName("step-1", "service-db")
	if want := "step-1-service-db-"; withRole[:len(want)] != want {
		t.Errorf("ContainerName with role = %q, want prefix %q", withRole, want)
	}
}

func TestNewDerivesStableID(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	run := New(Config{
		Project:     ProjectContext{Slug: "proj"},
		BuildNumber: 3,
		Clock:       clock,
	})

	first := run.ID
	clock.Advance(time.Hour)
	if run.ID != first {
		t.Error("run ID must not change after construction even as the clock advances")
	}
}

func TestFakeClockAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(90 * time.Minute)
	want := start.Add(90 * time.Minute)
	if !clock.Now().Equal(want) {
		t.Errorf("Now() after advance = %v, want %v", clock.Now(), want)
	}
}
