// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"testing"

	"github.com/bureau-foundation/pipeline-runner/internal/executor"
	"github.com/bureau-foundation/pipeline-runner/internal/logging"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
)

// fakeExecutor returns canned results keyed by step name, recording
// every call it receives.
type fakeExecutor struct {
	results map[string]executor.Result
	calls   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, in executor.Input) (executor.Result, error) {
	f.calls = append(f.calls, in.Step.Name)
	if result, ok := f.results[in.Step.Name]; ok {
		return result, nil
	}
	return executor.Result{StepID: in.StepID, StepName: in.Step.Name, ExitCode: 0}, nil
}

func testRun(t *testing.T) *runctx.Run {
	t.Helper()
	return &runctx.Run{
		Project:     runctx.ProjectContext{Slug: "proj"},
		BuildNumber: 1,
		Clock:       runctx.Real(),
	}
}

func TestRunSequentialGroupStopsOnFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeExecutor{results: map[string]executor.Result{
		"build": {StepName: "build", ExitCode: 1, FailureReason: "boom"},
	}}
	c := New(fake, testRun(t), logging.Discard())

	groups := []pipelinedef.StepGroup{
		{GroupIndex: 0, Steps: []pipelinedef.Step{{Name: "build", Script: []string{"go build"}}}},
		{GroupIndex: 1, Steps: []pipelinedef.Step{{Name: "deploy", Script: []string{"deploy.sh"}}}},
	}

	result, err := c.Run(context.Background(), groups, VariableInputs{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Failed {
		t.Error("expected the run to be marked failed")
	}
	if len(fake.calls) != 1 || fake.calls[0] != "build" {
		t.Errorf("calls = %v, want only [build] since a sequential failure must stop the run", fake.calls)
	}
}

func TestRunParallelGroupSiblingsAllAttemptedDespiteFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeExecutor{results: map[string]executor.Result{
		"unit-tests": {StepName: "unit-tests", ExitCode: 1, FailureReason: "boom"},
	}}
	c := New(fake, testRun(t), logging.Discard())

	groups := []pipelinedef.StepGroup{
		{
			GroupIndex: 0,
			Parallel:   true,
			Steps: []pipelinedef.Step{
				{Name: "unit-tests", Script: []string{"go test"}},
				{Name: "lint", Script: []string{"golangci-lint run"}},
			},
		},
	}

	result, err := c.Run(context.Background(), groups, VariableInputs{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Failed {
		t.Error("expected the run to be marked failed overall")
	}
	if len(fake.calls) != 2 {
		t.Errorf("calls = %v, want both parallel steps attempted despite one failing", fake.calls)
	}
	if len(result.Results) != 2 {
		t.Errorf("Results = %v, want both steps' results recorded", result.Results)
	}
}

func TestRunParallelGroupFailureStopsSubsequentGroups(t *testing.T) {
	t.Parallel()

	fake := &fakeExecutor{results: map[string]executor.Result{
		"unit-tests": {StepName: "unit-tests", ExitCode: 1, FailureReason: "boom"},
	}}
	c := New(fake, testRun(t), logging.Discard())

	groups := []pipelinedef.StepGroup{
		{
			GroupIndex: 0,
			Parallel:   true,
			Steps: []pipelinedef.Step{
				{Name: "unit-tests", Script: []string{"go test"}},
				{Name: "lint", Script: []string{"golangci-lint run"}},
			},
		},
		{GroupIndex: 1, Steps: []pipelinedef.Step{{Name: "deploy", Script: []string{"deploy.sh"}}}},
	}

	result, err := c.Run(context.Background(), groups, VariableInputs{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Failed {
		t.Error("expected the run to be marked failed overall")
	}
	for _, call := range fake.calls {
		if call == "deploy" {
			t.Errorf("calls = %v, deploy must not run after the earlier parallel group failed", fake.calls)
		}
	}
	if len(result.Results) != 2 {
		t.Errorf("Results = %v, want only the failed group's two steps recorded", result.Results)
	}
}

func TestRunAllStepsSucceed(t *testing.T) {
	t.Parallel()

	fake := &fakeExecutor{results: map[string]executor.Result{}}
	c := New(fake, testRun(t), logging.Discard())

	groups := []pipelinedef.StepGroup{
		{GroupIndex: 0, Steps: []pipelinedef.Step{{Name: "build", Script: []string{"go build"}}}},
		{GroupIndex: 1, Steps: []pipelinedef.Step{{Name: "test", Script: []string{"go test"}}}},
	}

	result, err := c.Run(context.Background(), groups, VariableInputs{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Failed {
		t.Error("did not expect the run to be marked failed")
	}
	if len(fake.calls) != 2 {
		t.Errorf("calls = %v, want both steps executed", fake.calls)
	}
}

func TestRunSkippedStepDoesNotFailGroup(t *testing.T) {
	t.Parallel()

	fake := &fakeExecutor{results: map[string]executor.Result{
		"deploy": {StepName: "deploy", Skipped: true},
	}}
	c := New(fake, testRun(t), logging.Discard())

	groups := []pipelinedef.StepGroup{
		{GroupIndex: 0, Steps: []pipelinedef.Step{{Name: "deploy", Script: []string{"deploy.sh"}, Trigger: pipelinedef.TriggerManual}}},
	}

	result, err := c.Run(context.Background(), groups, VariableInputs{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Failed {
		t.Error("a skipped manual step must not fail the run")
	}
}
