// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor implements spec.md §4.4, the Step Executor: the
// full per-step lifecycle from build-directory preparation through
// container teardown. It is deliberately the largest component in the
// module (spec.md §2's implementation budget gives it the largest
// single share) and is built, as spec.md §9 directs, on an explicit
// Run Context and a resource ledger rather than any ambient state or
// scope-guard idiom.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bureau-foundation/pipeline-runner/internal/container"
	"github.com/bureau-foundation/pipeline-runner/internal/dind"
	"github.com/bureau-foundation/pipeline-runner/internal/gitfiles"
	"github.com/bureau-foundation/pipeline-runner/internal/imageprovider"
	"github.com/bureau-foundation/pipeline-runner/internal/oidc"
	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
	"github.com/bureau-foundation/pipeline-runner/internal/service"
	"github.com/bureau-foundation/pipeline-runner/internal/variables"
	"github.com/bureau-foundation/pipeline-runner/internal/volume"
)

// baseMemoryBytes and baseNanoCPUs are the resource allocation for a
// size-1 step; larger declared sizes scale both linearly, matching
// the hosted product's own size-multiplier documentation.
const (
	baseMemoryBytes   = int64(4096) * 1024 * 1024
	baseNanoCPUs      = int64(2_000_000_000)
	stepUser          = "0"
	buildMountPath    = "/opt/atlassian/pipelines/agent/build"
	sshMountPath      = "/opt/atlassian/pipelines/agent/ssh"
	sshHomeConfigPath = "/root/.ssh/config"
	sshAgentPath      = "/ssh-agent"
	stopGraceSecs     = 10

	// defaultMaxTime is the wall-clock cap applied when a step and its
	// pipeline's options both leave max-time unset, matching the
	// hosted product's own default.
	defaultMaxTime = 120 * time.Minute
)

// stepDeadline parses a step's max-time (a whole number of minutes, or
// empty) into a duration, falling back to defaultMaxTime.
func stepDeadline(maxTime string) time.Duration {
	if maxTime == "" {
		return defaultMaxTime
	}
	minutes, err := strconv.Atoi(maxTime)
	if err != nil || minutes <= 0 {
		return defaultMaxTime
	}
	return time.Duration(minutes) * time.Minute
}

// Config bundles the Executor's collaborators and run-wide settings.
type Config struct {
	Client        *container.Client
	Provider      *imageprovider.Provider
	Volumes        *volume.Manager
	Ledger         *volume.Ledger
	Services       *service.Runtime
	Run            *runctx.Run
	OIDCSigner     *oidc.Signer
	OIDCAudience   string
	Logger         *slog.Logger
	Interactive    bool
	CPULimits      bool
	ArtifactRoot   string
	SourceRoot     string
	SSHPrivateKey  []byte
	SSHAgentSocket string
}

// Executor runs steps to completion.
type Executor struct {
	cfg Config
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{cfg: cfg}
}

// Input is everything Execute needs about one step beyond the
// Executor's run-wide configuration.
type Input struct {
	Step          pipelinedef.Step
	StepID        string
	GroupIndex    int
	StepIndex     int
	ParallelStep  int
	ParallelCount int
	Variables     variables.Set
}

// Execute runs one step end to end (spec.md §4.4's ten-step
// lifecycle) and returns its result. It returns a non-nil error only
// for failures spec.md §7 says must abort the run immediately
// (InvalidStep, Internal); every other failure is captured in the
// returned Result's FailureReason so the coordinator can apply normal
// step-failure handling.
func (e *Executor) Execute(ctx context.Context, in Input) (Result, error) {
	step := in.Step
	result := Result{StepID: in.StepID, StepName: step.Name, StartedAt: e.cfg.Run.Clock.Now()}
	logger := e.cfg.Logger.With("step", step.Name, "step_id", in.StepID)

	if step.Trigger == pipelinedef.TriggerManual {
		proceed, err := e.confirmManualTrigger(step.Name)
		if err != nil {
			return Result{}, &pipeerr.InternalError{Err: err}
		}
		if !proceed {
			logger.Info("manual step skipped (non-interactive run)")
			result.Skipped = true
			result.EndedAt = e.cfg.Run.Clock.Now()
			return result, nil
		}
	}

	buildDir, err := e.cfg.Volumes.BuildDir(in.StepID)
	if err != nil {
		return Result{}, &pipeerr.InternalError{Err: fmt.Errorf("allocating build directory: %w", err)}
	}

	if step.ClonePolicy.Enabled {
		copyOpts := gitfiles.CopyOptions{SourceRoot: e.cfg.SourceRoot, DestRoot: buildDir, Depth: step.ClonePolicy.Depth}
		if err := gitfiles.Copy(copyOpts); err != nil {
			return Result{}, &pipeerr.InternalError{Err: fmt.Errorf("copying project source: %w", err)}
		}
	}

	if step.Artifacts.Download {
		if err := rehydrateArtifacts(e.cfg.ArtifactRoot, buildDir); err != nil {
			logger.Warn("artifact rehydration failed", "error", err)
		}
	}

	mountedCaches, err := resolveCaches(e.cfg.Volumes, e.cfg.Run, buildDir, step.Caches)
	if err != nil {
		return result, e.fail(&result, fmt.Sprintf("resolving caches: %v", err))
	}

	networkName, err := e.cfg.Services.EnsureStepNetwork(ctx, in.StepID, step.Services)
	if err != nil {
		return result, e.fail(&result, fmt.Sprintf("creating step network: %v", err))
	}
	if networkName != "" {
		defer func() {
			if err := e.cfg.Client.RemoveNetwork(context.Background(), networkName); err != nil {
				logger.Warn("removing step network failed", "error", err)
			}
		}()
	}

	ref, err := e.cfg.Provider.Ensure(ctx, step.Image)
	if err != nil {
		return result, e.fail(&result, fmt.Sprintf("ensuring image: %v", err))
	}

	extraEnv := e.extraSystemVars(in)
	binds := cacheBinds(mountedCaches)
	var sshDir string
	if len(e.cfg.SSHPrivateKey) > 0 {
		sshDir, err = e.cfg.Volumes.SSHMaterialDir(in.StepID, e.cfg.SSHPrivateKey)
		if err != nil {
			logger.Warn("ssh material allocation failed", "error", err)
		} else {
			binds = append(binds, sshDir+":"+sshMountPath+":ro")
			// The user's own ~/.ssh/config must carry the same content
			// (same SHA-256) as the canonical config (spec.md §6); bind
			// mounting the same host file at both paths guarantees that
			// trivially, rather than relying on a container-side copy.
			binds = append(binds, sshDir+"/config:"+sshHomeConfigPath+":ro")
		}
	}
	if e.cfg.SSHAgentSocket != "" {
		binds = append(binds, e.cfg.SSHAgentSocket+":"+sshAgentPath)
		extraEnv["SSH_AUTH_SOCK"] = sshAgentPath
	}
	for _, svc := range step.Services {
		if svc.IsDocker() {
			binds = append(binds, dind.SocketVolumeName(e.cfg.Run)+":"+dind.SocketMountPath)
			break
		}
	}

	createOpts := container.CreateOptions{
		Name:        runctx.ContainerName(in.StepID, ""),
		Image:       ref,
		Cmd:         []string{"sleep", "infinity"},
		WorkingDir:  buildMountPath,
		User:        stepUser,
		Binds:       append(binds, buildDir+":"+buildMountPath),
		NetworkName: networkName,
		AutoRemove:  false,
		OpenStdin:   hasBreakpoint(step.Script) || hasBreakpoint(step.AfterScript),
	}
	if step.Image.RunAsUser != nil {
		createOpts.User = strconv.Itoa(*step.Image.RunAsUser)
	}
	if e.cfg.CPULimits {
		multiplier := step.Size
		if multiplier <= 0 {
			multiplier = 1
		}
		createOpts.Memory = baseMemoryBytes * int64(multiplier)
		createOpts.NanoCPUs = baseNanoCPUs * int64(multiplier)
	}

	containerID, err := e.cfg.Client.Create(ctx, createOpts)
	if err != nil {
		return result, e.fail(&result, fmt.Sprintf("creating step container: %v", err))
	}
	defer e.teardownContainer(containerID)

	if err := e.cfg.Client.Start(ctx, containerID); err != nil {
		return result, e.fail(&result, fmt.Sprintf("starting step container: %v", err))
	}

	var handles []service.Handle
	if len(step.Services) > 0 {
		handles, err = e.cfg.Services.StartAll(ctx, in.StepID, containerID, step.Services)
		if err != nil {
			return result, e.fail(&result, fmt.Sprintf("starting services: %v", err))
		}
		defer e.cfg.Services.TeardownAll(context.Background(), handles)
	}

	var serviceEnvSlices [][]string
	for _, handle := range handles {
		if len(handle.Env) > 0 {
			serviceEnvSlices = append(serviceEnvSlices, handle.Env)
		}
	}

	env := buildEnviron(in.Variables, extraEnv, serviceEnvSlices...)

	deadlineCtx, cancel := context.WithTimeout(ctx, stepDeadline(step.MaxTime))
	defer cancel()

	scriptLog := e.cfg.Run.StepDir(in.StepID) + "/script.log"
	exitCode, scriptErr := e.runProgram(deadlineCtx, containerID, step.Script, env, scriptLog)
	result.ExitCode = exitCode
	if scriptErr != nil {
		logger.Warn("script execution error", "error", scriptErr)
	}

	if len(step.AfterScript) > 0 {
		afterEnv := append(append([]string{}, env...), "BITBUCKET_EXIT_CODE="+strconv.Itoa(exitCode))
		afterLog := e.cfg.Run.StepDir(in.StepID) + "/after-script.log"
		afterExit, afterErr := e.runProgram(deadlineCtx, containerID, step.AfterScript, afterEnv, afterLog)
		if afterErr != nil {
			logger.Warn("after-script execution error", "error", afterErr)
		}
		if afterExit != 0 {
			logger.Warn("after-script exited nonzero", "exit_code", afterExit)
		}
	}

	artifactDest := e.cfg.Volumes.StepArtifactDir(e.cfg.ArtifactRoot, in.StepID)
	collected, collectErrs := collectArtifacts(logger, buildDir, artifactDest, step.Artifacts.Patterns)
	result.Artifacts = collected
	for _, collectErr := range collectErrs {
		logger.Warn("artifact collection error", "error", collectErr)
	}

	result.CachesPersisted = cacheNames(mountedCaches)
	result.EndedAt = e.cfg.Run.Clock.Now()

	if exitCode != 0 {
		result.FailureReason = (&pipeerr.ScriptFailureError{Step: step.Name, ExitCode: exitCode}).Error()
	}
	return result, nil
}

// fail records a failed-before-launch step (image/service/cache
// failures) with a nominal exit code of 1, per spec.md §4.4's failure
// semantics, and returns nil because these are step failures, not
// run-aborting ones.
func (e *Executor) fail(result *Result, reason string) error {
	result.ExitCode = 1
	result.FailureReason = reason
	result.EndedAt = e.cfg.Run.Clock.Now()
	return nil
}

func (e *Executor) extraSystemVars(in Input) map[string]string {
	extra := map[string]string{
		"BITBUCKET_STEP_UUID":           in.StepID,
		"BITBUCKET_PARALLEL_STEP":       strconv.Itoa(in.ParallelStep),
		"BITBUCKET_PARALLEL_STEP_COUNT": strconv.Itoa(in.ParallelCount),
	}
	if in.Step.Deployment != "" {
		extra["BITBUCKET_DEPLOYMENT_ENVIRONMENT"] = in.Step.Deployment
	}
	if in.Step.OIDCRequested && e.cfg.OIDCSigner != nil {
		token, err := e.cfg.OIDCSigner.Issue(oidc.IssueOptions{
			RepositorySlug: e.cfg.Run.Project.Slug,
			PipelineUUID:   e.cfg.Run.ID,
			StepID:         in.StepID,
			Audience:       e.cfg.OIDCAudience,
		})
		if err == nil {
			extra["BITBUCKET_STEP_OIDC_TOKEN"] = token
		} else {
			e.cfg.Logger.Warn("oidc token issuance failed", "error", err)
		}
	}
	return extra
}

// confirmManualTrigger waits for a y/n confirmation on the controlling
// terminal; in a non-interactive run it returns false immediately
// (spec.md §4.4: "the step is skipped and the pipeline stops
// successfully" — the coordinator treats a skip as success, not
// failure).
func (e *Executor) confirmManualTrigger(stepName string) (bool, error) {
	if !e.cfg.Interactive {
		return false, nil
	}
	fmt.Fprintf(os.Stderr, "Step %q requires manual trigger. Run it? [y/N] ", stepName)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	line = trimNewline(line)
	return line == "y" || line == "Y" || line == "yes", nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// runProgram builds the shell program for lines, execs it inside the
// already-running containerID, demultiplexes and tees its combined
// output to logPath, handles breakpoint pauses by forwarding
// os.Stdin, and returns its exit code.
func (e *Executor) runProgram(ctx context.Context, containerID string, lines []string, env []string, logPath string) (int, error) {
	program := buildProgram(lines, e.cfg.Interactive)

	execID, reader, err := e.cfg.Client.Exec(ctx, containerID, []string{"/bin/sh", "-c", program}, env, buildMountPath)
	if err != nil {
		return -1, err
	}
	defer reader.Close()

	if hasBreakpoint(lines) && e.cfg.Interactive {
		if writer, attachErr := e.cfg.Client.AttachStdin(ctx, containerID); attachErr == nil {
			go io.Copy(writer, os.Stdin)
			defer writer.Close()
		}
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return -1, err
	}
	defer file.Close()

	var mu sync.Mutex
	stdout := &prefixedWriter{mu: &mu, file: file, tee: os.Stdout}
	stderr := &prefixedWriter{mu: &mu, file: file, tee: os.Stderr}

	if _, err := stdcopy.StdCopy(stdout, stderr, reader); err != nil {
		return -1, err
	}

	return e.cfg.Client.ExecInspect(ctx, execID)
}

// prefixedWriter writes to both the per-step log file and the user's
// terminal, serialised by a shared mutex since stdout/stderr are
// drained by the same StdCopy call but may still interleave at the
// byte level across calls.
type prefixedWriter struct {
	mu   *sync.Mutex
	file io.Writer
	tee  io.Writer
}

func (w *prefixedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(p); err != nil {
		return 0, err
	}
	_, _ = w.tee.Write(p)
	return len(p), nil
}

func (e *Executor) teardownContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(stopGraceSecs+5)*time.Second)
	defer cancel()
	if err := e.cfg.Client.Stop(ctx, containerID, stopGraceSecs); err != nil {
		e.cfg.Logger.Warn("stopping step container failed", "error", err)
	}
	if err := e.cfg.Client.Remove(ctx, containerID); err != nil {
		e.cfg.Logger.Warn("removing step container failed", "error", err)
	}
}
