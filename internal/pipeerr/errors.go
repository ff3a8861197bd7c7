// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeerr defines the error taxonomy a caller of the
// execution engine needs to distinguish (spec.md §7). Callers match
// them with errors.As; the types that carry an underlying cause (an
// Err field) implement Unwrap so errors.Is/errors.As reach it too. The
// types are used across internal/pipelinedef, internal/variables,
// internal/imageprovider, internal/service, and internal/executor.
package pipeerr

import "fmt"

// InvalidStepError: a step references an undefined cache, service, or
// image, or is otherwise structurally unusable.
type InvalidStepError struct {
	Step string
	Err  error
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("step %q is invalid: %v", e.Step, e.Err)
}
func (e *InvalidStepError) Unwrap() error { return e.Err }

// ImagePullError: a pull failed due to network or authentication
// failure.
type ImagePullError struct {
	Image string
	Err   error
}

func (e *ImagePullError) Error() string {
	return fmt.Sprintf("pulling image %q: %v", e.Image, e.Err)
}
func (e *ImagePullError) Unwrap() error { return e.Err }

// ImageNotFoundError: the image reference does not resolve to a real
// image (bad reference, deleted tag).
type ImageNotFoundError struct {
	Image string
	Err   error
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image %q not found: %v", e.Image, e.Err)
}
func (e *ImageNotFoundError) Unwrap() error { return e.Err }

// ContainerStartError: the container runtime failed to create or
// start a step/service container.
type ContainerStartError struct {
	Name string
	Err  error
}

func (e *ContainerStartError) Error() string {
	return fmt.Sprintf("starting container %q: %v", e.Name, e.Err)
}
func (e *ContainerStartError) Unwrap() error { return e.Err }

// ServiceNotReadyError: a service container did not reach the running
// state within its settle window.
type ServiceNotReadyError struct {
	Service string
	Err     error
}

func (e *ServiceNotReadyError) Error() string {
	return fmt.Sprintf("service %q not ready: %v", e.Service, e.Err)
}
func (e *ServiceNotReadyError) Unwrap() error { return e.Err }

// ScriptFailureError: the step's script exited nonzero.
type ScriptFailureError struct {
	Step     string
	ExitCode int
}

func (e *ScriptFailureError) Error() string {
	return fmt.Sprintf("step %q script exited with code %d", e.Step, e.ExitCode)
}

// AfterScriptFailureError: the after-script exited nonzero. Logged,
// never fatal — callers should not abort the pipeline on this error,
// only record it.
type AfterScriptFailureError struct {
	Step     string
	ExitCode int
}

func (e *AfterScriptFailureError) Error() string {
	return fmt.Sprintf("step %q after-script exited with code %d", e.Step, e.ExitCode)
}

// CacheKeyMissingFileError: a cache's key.files list names a file
// that does not exist in the build directory.
type CacheKeyMissingFileError struct {
	Cache string
	File  string
}

func (e *CacheKeyMissingFileError) Error() string {
	return fmt.Sprintf("cache %q: key file %q does not exist", e.Cache, e.File)
}

// ArtifactCollectionError: an I/O failure copying a matched artifact
// file. Logged per file, never fatal to the step.
type ArtifactCollectionError struct {
	Pattern string
	Path    string
	Err     error
}

func (e *ArtifactCollectionError) Error() string {
	return fmt.Sprintf("collecting artifact %q (pattern %q): %v", e.Path, e.Pattern, e.Err)
}
func (e *ArtifactCollectionError) Unwrap() error { return e.Err }

// CancelledError: the run was cancelled by an external signal.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run cancelled: %v", e.Err)
	}
	return "run cancelled"
}
func (e *CancelledError) Unwrap() error { return e.Err }

// VariableValidationError: a required pipeline variable had no value,
// or a supplied value was not in its allowed-values list.
type VariableValidationError struct {
	Variable string
	Reason   string
}

func (e *VariableValidationError) Error() string {
	return fmt.Sprintf("variable %q: %s", e.Variable, e.Reason)
}

// InternalError: a programmer error or invariant violation that is
// not one of the above taxonomy members.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %v", e.Err) }
func (e *InternalError) Unwrap() error  { return e.Err }
