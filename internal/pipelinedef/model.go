// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"fmt"

	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
)

// Trigger values for a resolved Step.
const (
	TriggerAutomatic = "automatic"
	TriggerManual    = "manual"
)

// StepGroup is spec.md's StepGroup entity: an ordered list of steps
// sharing a sequential-or-parallel execution mode.
type StepGroup struct {
	Steps []Step
	// Parallel is true when this group's steps run as a Bitbucket
	// "parallel" block. The local Pipeline Coordinator still executes
	// them one at a time (spec.md §4.5's documented limitation) but
	// still presents BITBUCKET_PARALLEL_STEP/_COUNT per step.
	Parallel bool
	// GroupIndex is this group's position in the pipeline, used to
	// derive step-ids (spec.md §6).
	GroupIndex int
}

// Step is spec.md's Step entity, resolved from a StepDef against a
// Document's definitions. String fields (Script lines, When/Check
// equivalents embedded in Script, env values) still contain
// unexpanded ${NAME} references — internal/variables.ExpandStep
// performs that pass once the Run Context's variable set is known.
type Step struct {
	Name        string
	Image       ImageSpec
	Script      []string
	AfterScript []string
	Services    []ServiceSpec
	Caches      []CacheSpec
	Artifacts   ArtifactsDef
	Variables   map[string]string
	Trigger     string
	Deployment  string
	OIDCRequested bool
	Size        int
	MaxTime     string
	ClonePolicy ClonePolicy
}

// ServiceSpec is spec.md's ServiceSpec entity.
type ServiceSpec struct {
	Name        string
	Image       ImageSpec
	Environment map[string]string
	MemoryMB    int
	Command     string
}

// IsDocker reports whether this service is the special Docker-in-Docker
// sidecar named "docker" (spec.md §4.3).
func (s ServiceSpec) IsDocker() bool { return s.Name == "docker" }

// CacheSpec is spec.md's CacheSpec entity.
type CacheSpec struct {
	Name string
	Path string
	Key  *CacheKey
}

// builtinCaches mirrors the hosted service's predefined cache names
// (SPEC_FULL §C), usable without a matching definitions.caches entry.
var builtinCaches = map[string]string{
	"pip":        "~/.cache/pip",
	"npm":        "~/.npm",
	"node":       "node_modules",
	"gradle":     "~/.gradle/caches",
	"maven":      "~/.m2/repository",
	"composer":   "~/.composer/cache",
	"bundler":    "vendor/bundle",
	"dotnetcore": "~/.nuget/packages",
	"docker":     "", // special-cased: backed by a named volume, not a path
	"go":         "~/go/pkg/mod",
}

// resolveCache resolves a cache name referenced by a step into a
// CacheSpec, consulting definitions.caches first and falling back to
// the builtin table. Returns false if the name is unknown anywhere —
// per spec.md §9's preserved behaviour, the caller should warn and
// skip rather than fail the step.
func resolveCache(defs Definitions, name string) (CacheSpec, bool) {
	if def, ok := defs.Caches[name]; ok {
		return CacheSpec{Name: name, Path: def.Path, Key: def.Key}, true
	}
	if path, ok := builtinCaches[name]; ok {
		return CacheSpec{Name: name, Path: path}, true
	}
	return CacheSpec{}, false
}

// resolveService resolves a service name into a ServiceSpec using
// definitions.services. The special "docker" name is always
// resolvable even without an explicit definition when
// options.docker is set.
func resolveService(defs Definitions, opts Options, name string) (ServiceSpec, bool) {
	if def, ok := defs.Services[name]; ok {
		spec := ServiceSpec{Name: name, Environment: def.Environment, MemoryMB: def.Memory, Command: def.Command}
		if def.Image != nil {
			spec.Image = *def.Image
		} else if name == "docker" {
			spec.Image = ImageSpec{Name: "docker:dind"}
		}
		return spec, true
	}
	if name == "docker" && opts.Docker {
		return ServiceSpec{Name: "docker", Image: ImageSpec{Name: "docker:dind"}}, true
	}
	return ServiceSpec{}, false
}

// Resolve builds the ordered []StepGroup for one selected pipeline
// branch (a []StepGroupDef from Pipelines.Branches/Tags/Custom/
// Default), resolving cache/service names and applying
// document-level defaults (image, options.size). It does not expand
// ${NAME} variable references — that is internal/variables' job,
// applied per step once the Run Context's variable set is known.
//
// Returns InvalidStepError (wrapped) if a step references an unknown
// service, or has neither Script nor is otherwise well-formed.
func Resolve(doc *Document, groups []StepGroupDef) ([]StepGroup, error) {
	resolved := make([]StepGroup, 0, len(groups))

	for groupIndex, groupDef := range groups {
		var stepDefs []StepDef
		parallel := false
		if groupDef.Step != nil {
			stepDefs = []StepDef{*groupDef.Step}
		} else {
			stepDefs = groupDef.Parallel
			parallel = true
		}

		group := StepGroup{Parallel: parallel, GroupIndex: groupIndex}

		for _, stepDef := range stepDefs {
			step, err := resolveStep(doc, stepDef)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", stepDef.Name, err)
			}
			group.Steps = append(group.Steps, step)
		}

		resolved = append(resolved, group)
	}

	return resolved, nil
}

func resolveStep(doc *Document, stepDef StepDef) (Step, error) {
	image := ImageSpec{Name: "atlassian/default-image:4"}
	if doc.Image != nil {
		image = *doc.Image
	}
	if stepDef.Image != nil {
		image = *stepDef.Image
	}

	size := doc.Options.Size
	if size == 0 {
		size = 1
	}
	if stepDef.Size != 0 {
		size = stepDef.Size
	}

	maxTime := doc.Options.MaxTime
	if stepDef.MaxTime != "" {
		maxTime = stepDef.MaxTime
	}

	trigger := stepDef.Trigger
	if trigger == "" {
		trigger = TriggerAutomatic
	}

	step := Step{
		Name:          stepDef.Name,
		Image:         image,
		Script:        stepDef.Script,
		AfterScript:   stepDef.AfterScript,
		Artifacts:     stepDef.Artifacts,
		Variables:     stepDef.Variables,
		Trigger:       trigger,
		Deployment:    stepDef.Deployment,
		OIDCRequested: stepDef.OIDC,
		Size:          size,
		MaxTime:       maxTime,
		ClonePolicy:   stepDef.ClonePolicy,
	}

	for _, name := range stepDef.Services {
		service, ok := resolveService(doc.Definitions, doc.Options, name)
		if !ok {
			return Step{}, &pipeerr.InvalidStepError{Step: stepDef.Name, Err: fmt.Errorf("references undefined service %q", name)}
		}
		step.Services = append(step.Services, service)
	}

	for _, name := range stepDef.Caches {
		cache, ok := resolveCache(doc.Definitions, name)
		if !ok {
			// Preserved hosted-service behaviour (spec.md §9): skip
			// rather than fail. The cache is omitted from the resolved
			// step; no warning is logged for it here or later.
			continue
		}
		step.Caches = append(step.Caches, cache)
	}

	if step.Name == "" {
		return Step{}, &pipeerr.InvalidStepError{Step: stepDef.Name, Err: fmt.Errorf("missing required \"name\"")}
	}
	if len(step.Script) == 0 {
		return Step{}, &pipeerr.InvalidStepError{Step: stepDef.Name, Err: fmt.Errorf("missing required \"script\"")}
	}

	return step, nil
}
