// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ReadFile reads and parses a bitbucket-pipelines.yml file from disk.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a pipeline document from YAML bytes.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid pipeline document: %w", err)
	}

	doc := &Document{
		Image:     raw.Image.spec,
		Options:   raw.Options.toOptions(),
		Variables: raw.toVariableDefs(),
	}

	defs, err := raw.Definitions.toDefinitions()
	if err != nil {
		return nil, err
	}
	doc.Definitions = defs

	pipelines, err := raw.Pipelines.toPipelines()
	if err != nil {
		return nil, err
	}
	doc.Pipelines = pipelines

	return doc, nil
}

// --- raw (pre-resolution) YAML shapes ---
//
// bitbucket-pipelines.yml tolerates several shorthand forms for the
// same concept (an image can be a bare string or an object; artifacts
// can be a bare list of globs or an object with paths/download;
// caches can be a bare path string or an object with path/key). The
// rawXxx types below absorb that variance with custom UnmarshalYAML
// methods; everything downstream of Parse sees only the normalized
// pipelinedef types.

type rawDocument struct {
	Image       rawImage                  `yaml:"image"`
	Definitions rawDefinitions            `yaml:"definitions"`
	Pipelines   rawPipelines              `yaml:"pipelines"`
	Options     rawOptions                `yaml:"options"`
	Variables   []rawVariableDef          `yaml:"variables"`
}

func (d rawDocument) toVariableDefs() []VariableDef {
	out := make([]VariableDef, 0, len(d.Variables))
	for _, v := range d.Variables {
		out = append(out, VariableDef{
			Name:          v.Name,
			Default:       v.Default,
			AllowedValues: v.AllowedValues,
			Description:   v.Description,
		})
	}
	return out
}

type rawVariableDef struct {
	Name          string   `yaml:"name"`
	Default       *string  `yaml:"default"`
	AllowedValues []string `yaml:"allowed-values"`
	Description   string   `yaml:"description"`
}

type rawOptions struct {
	Size    rawIntOrString `yaml:"size"`
	MaxTime string          `yaml:"max-time"`
	Docker  bool            `yaml:"docker"`
}

func (o rawOptions) toOptions() Options {
	return Options{Size: o.Size.value, MaxTime: o.MaxTime, Docker: o.Docker}
}

// rawIntOrString accepts either a bare integer or a numeric string,
// since YAML authors sometimes quote sizes.
type rawIntOrString struct{ value int }

func (r *rawIntOrString) UnmarshalYAML(node *yaml.Node) error {
	var asInt int
	if err := node.Decode(&asInt); err == nil {
		r.value = asInt
		return nil
	}
	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("expected integer or numeric string, got %s", node.Tag)
	}
	parsed, err := strconv.Atoi(asString)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", asString, err)
	}
	r.value = parsed
	return nil
}

// rawImage accepts a bare image reference string or a mapping with
// name/username/password/aws/run-as-user/platform.
type rawImage struct{ spec *ImageSpec }

func (r *rawImage) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	var asString string
	if err := node.Decode(&asString); err == nil {
		r.spec = &ImageSpec{Name: asString}
		return nil
	}

	var asMap struct {
		Name      string `yaml:"name"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		RunAsUser *int   `yaml:"run-as-user"`
		Platform  string `yaml:"platform"`
		AWS       *struct {
			AccessKeyID     string `yaml:"access-key"`
			SecretAccessKey string `yaml:"secret-key"`
			OIDCRole        string `yaml:"oidc-role"`
		} `yaml:"aws"`
	}
	if err := node.Decode(&asMap); err != nil {
		return fmt.Errorf("invalid image definition: %w", err)
	}
	spec := &ImageSpec{
		Name:      asMap.Name,
		Username:  asMap.Username,
		Password:  asMap.Password,
		RunAsUser: asMap.RunAsUser,
		Platform:  asMap.Platform,
	}
	if asMap.AWS != nil {
		spec.AWS = &AWSAuth{
			AccessKeyID:     asMap.AWS.AccessKeyID,
			SecretAccessKey: asMap.AWS.SecretAccessKey,
			OIDCRole:        asMap.AWS.OIDCRole,
		}
	}
	r.spec = spec
	return nil
}

type rawDefinitions struct {
	Caches   map[string]rawCache   `yaml:"caches"`
	Services map[string]rawService `yaml:"services"`
}

func (d rawDefinitions) toDefinitions() (Definitions, error) {
	out := Definitions{Caches: map[string]CacheDef{}, Services: map[string]ServiceDef{}}
	for name, raw := range d.Caches {
		out.Caches[name] = raw.toCacheDef()
	}
	for name, raw := range d.Services {
		out.Services[name] = raw.toServiceDef()
	}
	return out, nil
}

// rawCache accepts a bare path string or a mapping with path/key.
type rawCache struct {
	Path string    `yaml:"path"`
	Key  *rawCacheKey `yaml:"key"`
}

type rawCacheKey struct {
	Files []string `yaml:"files"`
}

func (r *rawCache) UnmarshalYAML(node *yaml.Node) error {
	var asString string
	if err := node.Decode(&asString); err == nil {
		r.Path = asString
		return nil
	}
	type shape rawCache
	var s shape
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid cache definition: %w", err)
	}
	*r = rawCache(s)
	return nil
}

func (r rawCache) toCacheDef() CacheDef {
	def := CacheDef{Path: r.Path}
	if r.Key != nil {
		def.Key = &CacheKey{Files: r.Key.Files}
	}
	return def
}

type rawService struct {
	Image       rawImage          `yaml:"image"`
	Environment map[string]string `yaml:"environment"`
	Memory      int               `yaml:"memory"`
	Command     string            `yaml:"command"`
}

func (r rawService) toServiceDef() ServiceDef {
	def := ServiceDef{Environment: r.Environment, Memory: r.Memory, Command: r.Command}
	if r.Image.spec != nil {
		def.Image = r.Image.spec
	}
	return def
}

type rawPipelines struct {
	Default      []rawStepGroup            `yaml:"default"`
	Branches     map[string][]rawStepGroup `yaml:"branches"`
	Tags         map[string][]rawStepGroup `yaml:"tags"`
	PullRequests map[string][]rawStepGroup `yaml:"pull-requests"`
	Custom       map[string][]rawStepGroup `yaml:"custom"`
}

func (p rawPipelines) toPipelines() (Pipelines, error) {
	out := Pipelines{
		Branches:     map[string][]StepGroupDef{},
		Tags:         map[string][]StepGroupDef{},
		PullRequests: map[string][]StepGroupDef{},
		Custom:       map[string][]StepGroupDef{},
	}
	var err error
	if out.Default, err = toStepGroupDefs(p.Default); err != nil {
		return out, fmt.Errorf("pipelines.default: %w", err)
	}
	for name, raws := range p.Branches {
		if out.Branches[name], err = toStepGroupDefs(raws); err != nil {
			return out, fmt.Errorf("pipelines.branches.%s: %w", name, err)
		}
	}
	for name, raws := range p.Tags {
		if out.Tags[name], err = toStepGroupDefs(raws); err != nil {
			return out, fmt.Errorf("pipelines.tags.%s: %w", name, err)
		}
	}
	for name, raws := range p.PullRequests {
		if out.PullRequests[name], err = toStepGroupDefs(raws); err != nil {
			return out, fmt.Errorf("pipelines.pull-requests.%s: %w", name, err)
		}
	}
	for name, raws := range p.Custom {
		if out.Custom[name], err = toStepGroupDefs(raws); err != nil {
			return out, fmt.Errorf("pipelines.custom.%s: %w", name, err)
		}
	}
	return out, nil
}

func toStepGroupDefs(raws []rawStepGroup) ([]StepGroupDef, error) {
	out := make([]StepGroupDef, 0, len(raws))
	for _, raw := range raws {
		def, err := raw.toStepGroupDef()
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// rawStepGroup is one list element of a pipeline: {"step": {...}} or
// {"parallel": [...]} or {"parallel": {"steps": [...]}}.
type rawStepGroup struct {
	Step     *rawStep `yaml:"step"`
	Parallel rawParallel `yaml:"parallel"`
}

func (r rawStepGroup) toStepGroupDef() (StepGroupDef, error) {
	if r.Step != nil {
		step, err := r.Step.toStepDef()
		if err != nil {
			return StepGroupDef{}, err
		}
		return StepGroupDef{Step: &step}, nil
	}
	steps := make([]StepDef, 0, len(r.Parallel.Steps))
	for _, raw := range r.Parallel.Steps {
		if raw.Step == nil {
			return StepGroupDef{}, fmt.Errorf("parallel group entries must each be a \"step\"")
		}
		step, err := raw.Step.toStepDef()
		if err != nil {
			return StepGroupDef{}, err
		}
		steps = append(steps, step)
	}
	if len(steps) < 2 {
		return StepGroupDef{}, fmt.Errorf("parallel group must contain at least 2 steps, got %d", len(steps))
	}
	return StepGroupDef{Parallel: steps}, nil
}

// rawParallel accepts a bare list of {"step": {...}} entries or a
// mapping with a "steps" key wrapping the same list (the "fail-fast"
// variant of the hosted schema).
type rawParallel struct {
	Steps []rawStepGroup
}

func (r *rawParallel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&r.Steps)
	}
	var asMap struct {
		Steps []rawStepGroup `yaml:"steps"`
	}
	if err := node.Decode(&asMap); err != nil {
		return fmt.Errorf("invalid parallel block: %w", err)
	}
	r.Steps = asMap.Steps
	return nil
}

type rawStep struct {
	Name        string            `yaml:"name"`
	Image       rawImage          `yaml:"image"`
	Script      []string          `yaml:"script"`
	AfterScript []string          `yaml:"after-script"`
	Services    []string          `yaml:"services"`
	Caches      []string          `yaml:"caches"`
	Artifacts   rawArtifacts      `yaml:"artifacts"`
	Env         map[string]string `yaml:"env"`
	Trigger     string            `yaml:"trigger"`
	Deployment  string            `yaml:"deployment"`
	OIDC        bool              `yaml:"oidc"`
	Size        rawIntOrString    `yaml:"size"`
	MaxTime     string            `yaml:"max-time"`
	Clone       *rawClone         `yaml:"clone"`
}

type rawClone struct {
	Enabled *bool `yaml:"enabled"`
	Depth   rawIntOrString `yaml:"depth"`
}

func (r rawStep) toStepDef() (StepDef, error) {
	def := StepDef{
		Name:        r.Name,
		Image:       r.Image.spec,
		Script:      r.Script,
		AfterScript: r.AfterScript,
		Services:    r.Services,
		Caches:      r.Caches,
		Artifacts:   r.Artifacts.toArtifactsDef(),
		Variables:   r.Env,
		Trigger:     r.Trigger,
		Deployment:  r.Deployment,
		OIDC:        r.OIDC,
		Size:        r.Size.value,
		MaxTime:     r.MaxTime,
		ClonePolicy: ClonePolicy{Enabled: true},
	}
	if r.Clone != nil {
		if r.Clone.Enabled != nil {
			def.ClonePolicy.Enabled = *r.Clone.Enabled
		}
		def.ClonePolicy.Depth = r.Clone.Depth.value
	}
	return def, nil
}

// rawArtifacts accepts a bare list of glob strings or a mapping with
// paths/download.
type rawArtifacts struct {
	Patterns []string
	Download *bool
}

func (r *rawArtifacts) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&r.Patterns)
	}
	var asMap struct {
		Paths    []string `yaml:"paths"`
		Download *bool    `yaml:"download"`
	}
	if err := node.Decode(&asMap); err != nil {
		return fmt.Errorf("invalid artifacts definition: %w", err)
	}
	r.Patterns = asMap.Paths
	r.Download = asMap.Download
	return nil
}

func (r rawArtifacts) toArtifactsDef() ArtifactsDef {
	download := true
	if r.Download != nil {
		download = *r.Download
	}
	return ArtifactsDef{Patterns: r.Patterns, Download: download}
}
