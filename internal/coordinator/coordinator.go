// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator implements spec.md §4.5, the Pipeline
// Coordinator: walking a pipeline's ordered step-groups, applying
// sequential-stop-on-failure / parallel-continue semantics, and
// threading variables and artifacts forward between steps.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/pipeline-runner/internal/executor"
	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
	"github.com/bureau-foundation/pipeline-runner/internal/variables"
)

// RunResult is the outcome of walking an entire pipeline.
type RunResult struct {
	Results []executor.Result
	Failed  bool
}

// VariableInputs are the collaborator-supplied values the coordinator
// folds into every step's five-tier resolution (spec.md §4.6).
type VariableInputs struct {
	Declarations []pipelinedef.VariableDef
	System       variables.System
	Deployment   map[string]string
	UserSupplied map[string]string
	SecretNames  map[string]bool
}

// stepExecutor is the narrow surface Coordinator needs from an
// Executor; *executor.Executor satisfies it, and tests substitute a
// fake to exercise sequential-stop/parallel-continue semantics without
// a Docker daemon.
type stepExecutor interface {
	Execute(ctx context.Context, in executor.Input) (executor.Result, error)
}

// Coordinator walks a resolved pipeline's step groups.
type Coordinator struct {
	exec   stepExecutor
	run    *runctx.Run
	logger *slog.Logger
}

// New creates a Coordinator.
func New(exec stepExecutor, run *runctx.Run, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{exec: exec, run: run, logger: logger}
}

// Run walks groups in order. Within a parallel group every step is
// still attempted (serialised in declared order per spec.md §4.5's
// documented limitation) even after a sibling fails, but once the
// group finishes, a failure anywhere in it stops the run exactly like
// a failed sequential step — no group's failure is ever swallowed to
// let a later group run.
func (c *Coordinator) Run(ctx context.Context, groups []pipelinedef.StepGroup, inputs VariableInputs) (RunResult, error) {
	var result RunResult

	for _, group := range groups {
		groupFailed := false

		for stepIndex, step := range group.Steps {
			stepID := c.run.StepID(group.GroupIndex, stepIndex, step.Name)

			resolvedVars, err := variables.Resolve(
				inputs.Declarations,
				inputs.System,
				inputs.Deployment,
				inputs.UserSupplied,
				inputs.SecretNames,
				step.Variables,
			)
			if err != nil {
				return result, err
			}

			expandedStep := variables.ExpandStep(step, resolvedVars.Plain())

			stepResult, err := c.exec.Execute(ctx, executor.Input{
				Step:          expandedStep,
				StepID:        stepID,
				GroupIndex:    group.GroupIndex,
				StepIndex:     stepIndex,
				ParallelStep:  stepIndex,
				ParallelCount: len(group.Steps),
				Variables:     resolvedVars,
			})
			if err != nil {
				return result, err
			}

			c.report(stepResult)
			result.Results = append(result.Results, stepResult)

			if !stepResult.Succeeded() && !stepResult.Skipped {
				groupFailed = true
				if !group.Parallel {
					result.Failed = true
					return result, nil
				}
			}
		}

		if groupFailed {
			result.Failed = true
			return result, nil
		}
	}

	return result, nil
}

// report writes the single terminal line spec.md §7 mandates for a
// failed step, and a shorter line for success/skip.
func (c *Coordinator) report(result executor.Result) {
	switch {
	case result.Skipped:
		c.logger.Info("step skipped", "step", result.StepName)
	case result.Succeeded():
		c.logger.Info("step succeeded", "step", result.StepName, "exit_code", result.ExitCode)
	default:
		reason := result.FailureReason
		if reason == "" {
			reason = (&pipeerr.ScriptFailureError{Step: result.StepName, ExitCode: result.ExitCode}).Error()
		}
		fmt.Printf("Step '%s' failed: %s\n", result.StepName, reason)
	}
}
