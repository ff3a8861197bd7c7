// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"
)

// breakpointMarker is the sentinel line spec.md §4.4 names: a script
// line whose trimmed form equals this string suspends execution.
const breakpointMarker = "# pipeline-runner[breakpoint]"

// echoPrefix distinguishes the executor's own echo of each command
// from the command's own output in the combined log.
const echoPrefix = "+ "

// buildProgram assembles the /bin/sh program the step container runs:
// each line is echoed with a distinguishing prefix, then executed; a
// nonzero exit from any line aborts the remaining lines and that exit
// code becomes the program's own exit code (the "implicit set -e" the
// hosted agent documents, done here explicitly rather than by relying
// on the shell's own errexit, since errexit does not apply inside
// pipelines/subshells the way a naive script author would expect).
// When interactive is true, a breakpoint line is turned into a pause
// that reads one line from the container's stdin before continuing;
// when false it is dropped entirely (a no-op, per spec.md §4.4).
func buildProgram(lines []string, interactive bool) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")

	for _, line := range lines {
		if strings.TrimSpace(line) == breakpointMarker {
			if interactive {
				b.WriteString("echo '" + echoPrefix + "pipeline-runner: breakpoint reached, press enter to continue'\n")
				b.WriteString("read -r _pipeline_runner_breakpoint\n")
			}
			continue
		}

		escaped := strings.ReplaceAll(line, "'", "'\\''")
		b.WriteString("echo '" + echoPrefix + escaped + "'\n")
		b.WriteString(line + "\n")
		b.WriteString("_pipeline_runner_status=$?\n")
		b.WriteString("if [ \"$_pipeline_runner_status\" -ne 0 ]; then exit \"$_pipeline_runner_status\"; fi\n")
	}

	b.WriteString("exit 0\n")
	return b.String()
}

// hasBreakpoint reports whether any line in the script contains a
// breakpoint marker, used by the executor to decide whether to open
// the container's stdin at all.
func hasBreakpoint(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == breakpointMarker {
			return true
		}
	}
	return false
}
