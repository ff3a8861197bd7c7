// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package variables implements spec.md §4.6's variable precedence and
// ${NAME} expansion, adapted from the teacher's lib/pipeline
// variables.go (ResolveVariables/Expand) to the five-tier Bitbucket
// precedence order instead of the teacher's three-tier one.
package variables

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
)

// Origin identifies where a resolved variable's value came from, for
// secret masking and for BITBUCKET_DEPLOYMENT_ENVIRONMENT-style
// provenance decisions.
type Origin int

const (
	OriginSystem Origin = iota
	OriginPipelineDeclared
	OriginDeployment
	OriginUserSupplied
	OriginStepLocal
)

// Resolved is one variable's final value plus bookkeeping needed by
// the log sink (secret masking) and by callers that need to know
// provenance.
type Resolved struct {
	Value  string
	Origin Origin
	Secret bool
}

// Set is the full environment a step sees, keyed by variable name.
type Set map[string]Resolved

// Environ renders a Set as a "NAME=value" slice suitable for
// exec.Cmd.Env or a container's Env field.
func (s Set) Environ() []string {
	out := make([]string, 0, len(s))
	for name, resolved := range s {
		out = append(out, name+"="+resolved.Value)
	}
	sort.Strings(out)
	return out
}

// Plain renders a Set as a name->value map, discarding provenance —
// the form ${NAME} expansion consumes.
func (s Set) Plain() map[string]string {
	out := make(map[string]string, len(s))
	for name, resolved := range s {
		out[name] = resolved.Value
	}
	return out
}

// System is the fixed BITBUCKET_* system variable set, assembled by
// the Run Context once per run (spec.md §4.6's item 5). Per-step
// fields (BITBUCKET_STEP_UUID, BITBUCKET_PARALLEL_STEP, etc.) are
// merged in separately by the executor since they vary per step.
type System struct {
	BuildNumber   string
	PipelineUUID  string
	RepoSlug      string
	RepoOwner     string
	RepoFullName  string
	CloneDir      string
	Branch        string
	Commit        string
}

func (s System) toMap() map[string]string {
	return map[string]string{
		"BITBUCKET_BUILD_NUMBER":   s.BuildNumber,
		"BITBUCKET_PIPELINE_UUID":  s.PipelineUUID,
		"BITBUCKET_REPO_SLUG":      s.RepoSlug,
		"BITBUCKET_REPO_OWNER":     s.RepoOwner,
		"BITBUCKET_REPO_FULL_NAME": s.RepoFullName,
		"BITBUCKET_CLONE_DIR":      s.CloneDir,
		"BITBUCKET_BRANCH":         s.Branch,
		"BITBUCKET_COMMIT":         s.Commit,
	}
}

// Resolve merges the five precedence tiers (lowest to highest) into a
// single Set, per spec.md §4.6:
//
//  1. system           - the fixed BITBUCKET_* values
//  2. pipelineDeclared  - defaults from the document's "variables" list
//  3. deployment        - values from the deployment-variables collaborator
//  4. userSupplied      - CLI flags / prompts / .env
//  5. stepLocal         - the step's own Variables map
//
// secretNames marks which of userSupplied/deployment values must be
// masked in logs (spec.md §7); pipeline-declared and step-local values
// are never secret by construction in this model.
//
// Returns a *pipeerr.VariableValidationError if a declared
// variable has no default and no value from any higher tier, or if a
// supplied value is not in its declared allowed-values list.
func Resolve(
	declarations []pipelinedef.VariableDef,
	system System,
	deployment map[string]string,
	userSupplied map[string]string,
	secretNames map[string]bool,
	stepLocal map[string]string,
) (Set, error) {
	resolved := make(Set)

	for name, value := range system.toMap() {
		resolved[name] = Resolved{Value: value, Origin: OriginSystem}
	}

	declaredByName := make(map[string]pipelinedef.VariableDef, len(declarations))
	for _, decl := range declarations {
		declaredByName[decl.Name] = decl
		if decl.Default != nil {
			resolved[decl.Name] = Resolved{Value: *decl.Default, Origin: OriginPipelineDeclared}
		}
	}

	for name, value := range deployment {
		resolved[name] = Resolved{Value: value, Origin: OriginDeployment, Secret: secretNames[name]}
	}

	for name, value := range userSupplied {
		resolved[name] = Resolved{Value: value, Origin: OriginUserSupplied, Secret: secretNames[name]}
	}

	for name, value := range stepLocal {
		resolved[name] = Resolved{Value: value, Origin: OriginStepLocal}
	}

	var missing []string
	for name, decl := range declaredByName {
		current, exists := resolved[name]
		if !exists {
			missing = append(missing, name)
			continue
		}
		if len(decl.AllowedValues) > 0 && !contains(decl.AllowedValues, current.Value) {
			return nil, &pipeerr.VariableValidationError{
				Variable: name,
				Reason:   fmt.Sprintf("value %q is not one of %v", current.Value, decl.AllowedValues),
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &pipeerr.VariableValidationError{
			Variable: strings.Join(missing, ", "),
			Reason:   "required pipeline variable has no default and was not supplied",
		}
	}

	return resolved, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// variablePattern matches ${NAME} references, the same braced-only
// form the teacher's Expand recognizes (bare $NAME is left for shell
// interpretation).
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${NAME} references in input using values, leaving
// unresolved references untouched (unlike the teacher's Expand, which
// errors on unresolved references — Bitbucket scripts legitimately
// reference variables the shell itself will supply at runtime inside
// the container, so this package does not treat an unresolved
// reference as a parse-time error; the shell will see the literal
// ${NAME} and either expand it as its own variable or fail at
// runtime, matching hosted behaviour).
func Expand(input string, values map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := values[name]; exists {
			return value
		}
		return match
	})
}

// ExpandStep returns a copy of step with Script, AfterScript, and
// step-local Variables expanded against values. Step-local values are
// expanded first (against the base set only, not against each other)
// then folded into the map used to expand Script/AfterScript, mirroring
// the teacher's ExpandStep two-pass approach.
func ExpandStep(step pipelinedef.Step, values map[string]string) pipelinedef.Step {
	merged := make(map[string]string, len(values)+len(step.Variables))
	for name, value := range values {
		merged[name] = value
	}

	var expandedVars map[string]string
	if len(step.Variables) > 0 {
		expandedVars = make(map[string]string, len(step.Variables))
		for name, value := range step.Variables {
			expandedVars[name] = Expand(value, values)
		}
		for name, value := range expandedVars {
			merged[name] = value
		}
	}

	out := step
	out.Variables = expandedVars
	out.Script = expandLines(step.Script, merged)
	out.AfterScript = expandLines(step.AfterScript, merged)
	return out
}

func expandLines(lines []string, values map[string]string) []string {
	if lines == nil {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Expand(line, values)
	}
	return out
}
