// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package variables

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
)

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	hello := "hello"
	declarations := []pipelinedef.VariableDef{
		{Name: "GREETING", Default: &hello},
	}
	system := System{BuildNumber: "1", RepoSlug: "repo"}
	deployment := map[string]string{"GREETING": "from-deployment"}
	userSupplied := map[string]string{"GREETING": "from-user"}
	stepLocal := map[string]string{"GREETING": "from-step"}

	resolved, err := Resolve(declarations, system, deployment, userSupplied, nil, stepLocal)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := resolved["GREETING"].Value; got != "from-step" {
		t.Errorf("GREETING = %q, want %q (step-local must win)", got, "from-step")
	}
	if got := resolved["BITBUCKET_REPO_SLUG"].Value; got != "repo" {
		t.Errorf("BITBUCKET_REPO_SLUG = %q, want %q", got, "repo")
	}
}

func TestResolveFallsBackThroughTiers(t *testing.T) {
	t.Parallel()

	hello := "hello"
	declarations := []pipelinedef.VariableDef{{Name: "GREETING", Default: &hello}}

	resolved, err := Resolve(declarations, System{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := resolved["GREETING"].Value; got != "hello" {
		t.Errorf("GREETING = %q, want pipeline-declared default %q", got, "hello")
	}

	resolved, err = Resolve(declarations, System{}, nil, map[string]string{"GREETING": "from-user"}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := resolved["GREETING"].Value; got != "from-user" {
		t.Errorf("GREETING = %q, want user-supplied override %q", got, "from-user")
	}
}

func TestResolveMissingRequiredVariable(t *testing.T) {
	t.Parallel()

	declarations := []pipelinedef.VariableDef{{Name: "DEPLOY_TOKEN"}}

	_, err := Resolve(declarations, System{}, nil, nil, nil, nil)
	require.Error(t, err, "expected error for a declared variable with no default and no value")
	var validationErr *pipeerr.VariableValidationError
	require.True(t, errors.As(err, &validationErr), "expected *pipeerr.VariableValidationError, got %T", err)
}

func TestResolveExplicitEmptyDefaultIsNotMissing(t *testing.T) {
	t.Parallel()

	empty := ""
	declarations := []pipelinedef.VariableDef{{Name: "OPTIONAL_SUFFIX", Default: &empty}}

	resolved, err := Resolve(declarations, System{}, nil, nil, nil, nil)
	require.NoError(t, err, "a declared default of \"\" must resolve, not be treated as missing")
	if got := resolved["OPTIONAL_SUFFIX"].Value; got != "" {
		t.Errorf("OPTIONAL_SUFFIX = %q, want empty string", got)
	}
}

func TestResolveExplicitEmptyUserSuppliedValueIsNotMissing(t *testing.T) {
	t.Parallel()

	declarations := []pipelinedef.VariableDef{{Name: "OPTIONAL_SUFFIX"}}

	resolved, err := Resolve(declarations, System{}, nil, map[string]string{"OPTIONAL_SUFFIX": ""}, nil, nil)
	require.NoError(t, err, "a user-supplied value of \"\" must resolve, not be treated as missing")
	if got := resolved["OPTIONAL_SUFFIX"].Value; got != "" {
		t.Errorf("OPTIONAL_SUFFIX = %q, want empty string", got)
	}
}

func TestResolveAllowedValues(t *testing.T) {
	t.Parallel()

	staging := "staging"
	declarations := []pipelinedef.VariableDef{
		{Name: "ENVIRONMENT", Default: &staging, AllowedValues: []string{"staging", "production"}},
	}

	if _, err := Resolve(declarations, System{}, nil, map[string]string{"ENVIRONMENT": "dev"}, nil, nil); err == nil {
		t.Error("expected error for a value outside allowed-values")
	}

	resolved, err := Resolve(declarations, System{}, nil, map[string]string{"ENVIRONMENT": "production"}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := resolved["ENVIRONMENT"].Value; got != "production" {
		t.Errorf("ENVIRONMENT = %q, want %q", got, "production")
	}
}

func TestResolveSecretMasking(t *testing.T) {
	t.Parallel()

	resolved, err := Resolve(nil, System{}, nil, map[string]string{"API_KEY": "shh"}, map[string]bool{"API_KEY": true}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !resolved["API_KEY"].Secret {
		t.Error("expected API_KEY to be flagged secret")
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		values map[string]string
		want   string
	}{
		{"resolved reference", "echo ${NAME}", map[string]string{"NAME": "world"}, "echo world"},
		{"unresolved reference passes through", "echo ${MISSING}", nil, "echo ${MISSING}"},
		{"bare dollar untouched", "echo $NAME", map[string]string{"NAME": "world"}, "echo $NAME"},
		{"multiple references", "${A}-${B}", map[string]string{"A": "x", "B": "y"}, "x-y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.input, tt.values); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandStep(t *testing.T) {
	t.Parallel()

	step := pipelinedef.Step{
		Name:      "build",
		Script:    []string{"echo ${GREETING} ${NAME}"},
		Variables: map[string]string{"NAME": "${GREETING}-suffix"},
	}

	expanded := ExpandStep(step, map[string]string{"GREETING": "hi"})

	if got, want := expanded.Script[0], "echo hi hi-suffix"; got != want {
		t.Errorf("Script[0] = %q, want %q", got, want)
	}
	if got, want := expanded.Variables["NAME"], "hi-suffix"; got != want {
		t.Errorf("Variables[NAME] = %q, want %q", got, want)
	}
}

func TestSetEnviron(t *testing.T) {
	t.Parallel()

	set := Set{
		"B": {Value: "2"},
		"A": {Value: "1"},
	}
	got := set.Environ()
	want := []string{"A=1", "B=2"}
	if len(got) != len(want) {
		t.Fatalf("Environ() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Environ()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
