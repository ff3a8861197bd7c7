// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinedef holds the in-memory model of a parsed
// bitbucket-pipelines.yml document and the logic to select, expand,
// and validate a pipeline from it.
//
// Parsing and schema validation are collaborator concerns per the
// core's scope (the execution engine only consumes an already-valid
// model), but the CLI needs somewhere to produce that model, so this
// package plays both roles: [Parse] builds the tree, [Validate]
// checks it, and the rest of the module (runctx, executor, coordinator)
// only ever sees the resulting types.
package pipelinedef

// Document is the root of a parsed pipeline definition file.
type Document struct {
	Image       *ImageSpec
	Definitions Definitions
	Pipelines   Pipelines
	Options     Options
	Variables   []VariableDef
}

// Options carries pipeline-wide settings (the "options" top-level key).
type Options struct {
	// Size is the default size multiplier (1, 2, 4, ...) applied to
	// steps that do not declare their own.
	Size int

	// MaxTime is the default step timeout when a step does not set
	// its own MaxTime. Empty means the executor's built-in default.
	MaxTime string

	// Docker, when true, makes a "docker" service implicitly available
	// to every step without an explicit definitions.services entry.
	Docker bool
}

// Definitions holds the named caches and services a pipeline's steps
// may reference by name.
type Definitions struct {
	Caches   map[string]CacheDef
	Services map[string]ServiceDef
}

// CacheDef is one entry under definitions.caches. Path is required;
// Key is optional (nil means the constant "default" key, per spec.md
// §4.2).
type CacheDef struct {
	Path string
	Key  *CacheKey
}

// CacheKey names the files whose combined content hash derives a
// cache's key.
type CacheKey struct {
	Files []string
}

// ServiceDef is one entry under definitions.services.
type ServiceDef struct {
	Image       *ImageSpec
	Environment map[string]string
	Memory      int // MB; 0 means unset
	Command     string
}

// Pipelines holds every addressable pipeline branch of the document.
// Exactly one of these is selected by the CLI collaborator per
// invocation (branch/tag/PR matching, or an explicit custom name) and
// handed to the core as a []StepGroup.
type Pipelines struct {
	Default      []StepGroupDef
	Branches     map[string][]StepGroupDef
	Tags         map[string][]StepGroupDef
	PullRequests map[string][]StepGroupDef
	Custom       map[string][]StepGroupDef
}

// StepGroupDef is one element of a pipeline's step list: either a
// single sequential step or a parallel group of steps.
type StepGroupDef struct {
	Step     *StepDef
	Parallel []StepDef
}

// StepDef is a single step as written in the document, before
// variable expansion. See pipelinedef.Step in model.go for the
// resolved form consumed by the executor.
type StepDef struct {
	Name        string
	Image       *ImageSpec
	Script      []string
	AfterScript []string
	Services    []string
	Caches      []string
	Artifacts   ArtifactsDef
	Variables   map[string]string
	Trigger     string // "automatic" (default) or "manual"
	Deployment  string
	OIDC        bool
	Size        int
	MaxTime     string
	ClonePolicy ClonePolicy
}

// ArtifactsDef is the step's declared artifact configuration. Download
// defaults to true; a step sets Download=false to opt out of
// rehydrating artifacts collected from earlier steps (SPEC_FULL §C).
type ArtifactsDef struct {
	Patterns []string
	Download bool
}

// ClonePolicy captures a step's own "clone" mapping (its enabled and
// depth keys, SPEC_FULL §C). Enabled defaults to true; when false the
// executor does not copy the project source into that step's build
// directory. Depth is carried through but does not change the copy,
// which always seeds the build directory from the working tree.
type ClonePolicy struct {
	Enabled bool
	Depth   int // 0 means unset
}

// VariableDef is a pipeline-declared variable (top-level "variables"
// list), consumed during precedence resolution in internal/variables.
//
// Default is a pointer because the document's "default" key has three
// distinct states a bare string cannot represent: absent entirely (the
// variable has no pipeline-declared default and must come from a
// higher tier), present and empty (the default IS "", a legitimate
// value per spec.md §8), and present and non-empty. nil means absent.
type VariableDef struct {
	Name          string
	Default       *string
	AllowedValues []string
	Description   string
}

// ImageSpec names an image and how to pull/run it. Equality for the
// Image Provider's pull-coalescing is by (Name, Platform) as specified
// in spec.md §4.1 — credential fields never participate in that
// comparison and are never logged.
type ImageSpec struct {
	Name       string
	RunAsUser  *int
	Platform   string
	Username   string
	Password   string
	AWS        *AWSAuth
}

// AWSAuth carries ECR credential material. Detection of ECR
// references is by host pattern (see internal/imageprovider).
type AWSAuth struct {
	AccessKeyID     string
	SecretAccessKey string
	OIDCRole        string
}
