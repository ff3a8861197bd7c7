// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
)

func TestResolveAppliesDocumentDefaults(t *testing.T) {
	t.Parallel()

	doc := &Document{
		Image:   &ImageSpec{Name: "node:20"},
		Options: Options{Size: 2},
	}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}}},
	}

	resolved, err := Resolve(doc, groups)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	step := resolved[0].Steps[0]
	if step.Image.Name != "node:20" {
		t.Errorf("Image.Name = %q, want node:20 (document default)", step.Image.Name)
	}
	if step.Size != 2 {
		t.Errorf("Size = %d, want 2 (options default)", step.Size)
	}
	if step.Trigger != TriggerAutomatic {
		t.Errorf("Trigger = %q, want %q", step.Trigger, TriggerAutomatic)
	}
}

func TestResolveStepImageOverridesDocument(t *testing.T) {
	t.Parallel()

	doc := &Document{Image: &ImageSpec{Name: "node:20"}}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}, Image: &ImageSpec{Name: "golang:1.24"}}},
	}

	resolved, err := Resolve(doc, groups)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := resolved[0].Steps[0].Image.Name; got != "golang:1.24" {
		t.Errorf("Image.Name = %q, want golang:1.24", got)
	}
}

func TestResolveUndefinedServiceFails(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}, Services: []string{"nope"}}},
	}

	_, err := Resolve(doc, groups)
	if err == nil {
		t.Fatal("expected error for a step referencing an undefined service")
	}
	var invalidStep *pipeerr.InvalidStepError
	if !errors.As(err, &invalidStep) {
		t.Errorf("expected *pipeerr.InvalidStepError, got %T", err)
	}
}

func TestResolveUnknownCacheIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}, Caches: []string{"nonexistent"}}},
	}

	resolved, err := Resolve(doc, groups)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved[0].Steps[0].Caches) != 0 {
		t.Errorf("expected unknown cache to be silently skipped, got %v", resolved[0].Steps[0].Caches)
	}
}

func TestResolveBuiltinCache(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}, Caches: []string{"go"}}},
	}

	resolved, err := Resolve(doc, groups)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	caches := resolved[0].Steps[0].Caches
	if len(caches) != 1 || caches[0].Path != "~/go/pkg/mod" {
		t.Errorf("Caches = %v, want builtin go cache path", caches)
	}
}

func TestResolveDockerServiceImplicitlyAvailable(t *testing.T) {
	t.Parallel()

	doc := &Document{Options: Options{Docker: true}}
	groups := []StepGroupDef{
		{Step: &StepDef{Name: "build", Script: []string{"echo hi"}, Services: []string{"docker"}}},
	}

	resolved, err := Resolve(doc, groups)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	services := resolved[0].Steps[0].Services
	if len(services) != 1 || !services[0].IsDocker() {
		t.Errorf("Services = %v, want a resolved docker service", services)
	}
}

func TestResolveMissingNameFails(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	groups := []StepGroupDef{{Step: &StepDef{Script: []string{"echo hi"}}}}

	if _, err := Resolve(doc, groups); err == nil {
		t.Fatal("expected error for a step with no name")
	}
}

func TestResolveMissingScriptFails(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	groups := []StepGroupDef{{Step: &StepDef{Name: "build"}}}

	if _, err := Resolve(doc, groups); err == nil {
		t.Fatal("expected error for a step with no script")
	}
}
