// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"
	"testing"
)

func TestBuildProgramAbortsOnNonzeroExit(t *testing.T) {
	t.Parallel()

	program := buildProgram([]string{"echo one", "exit 1", "echo two"}, false)

	if !strings.Contains(program, "exit \"$_pipeline_runner_status\"") {
		t.Error("expected the generated program to exit on a nonzero status")
	}
	if !strings.HasPrefix(program, "#!/bin/sh\n") {
		t.Error("expected a /bin/sh shebang")
	}
	if !strings.Contains(program, "echo two") {
		t.Error("expected every script line to appear, even after an exit check")
	}
}

func TestBuildProgramBreakpointInteractive(t *testing.T) {
	t.Parallel()

	program := buildProgram([]string{"echo before", breakpointMarker, "echo after"}, true)

	if !strings.Contains(program, "read -r _pipeline_runner_breakpoint") {
		t.Error("expected an interactive breakpoint to insert a blocking read")
	}
}

func TestBuildProgramBreakpointNonInteractiveIsNoop(t *testing.T) {
	t.Parallel()

	program := buildProgram([]string{"echo before", breakpointMarker, "echo after"}, false)

	if strings.Contains(program, "read -r") {
		t.Error("expected a non-interactive breakpoint to be dropped entirely")
	}
	if !strings.Contains(program, "echo before") || !strings.Contains(program, "echo after") {
		t.Error("expected surrounding lines to still be present")
	}
}

func TestBuildProgramEscapesSingleQuotes(t *testing.T) {
	t.Parallel()

	program := buildProgram([]string{`echo 'hello'`}, false)

	if !strings.Contains(program, `'\''`) {
		t.Error("expected an embedded single quote in the echoed line to be escaped")
	}
}

func TestHasBreakpoint(t *testing.T) {
	t.Parallel()

	if hasBreakpoint([]string{"echo hi"}) {
		t.Error("expected no breakpoint in a plain script")
	}
	if !hasBreakpoint([]string{"echo hi", "  " + breakpointMarker + "  "}) {
		t.Error("expected a trimmed breakpoint marker to be detected")
	}
}
