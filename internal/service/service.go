// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements spec.md §4.3, the Service Runtime:
// starting a step's declared service sidecars once the step container
// exists (so each can join its network namespace), health-gating them
// with a settle window, capturing their logs to disk, and tearing them
// down after the step regardless of its outcome. Services are never
// hostname-reachable from the step container (spec.md §4.3's
// documented limitation) — only localhost, matching the hosted
// product's own network_mode wiring.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/pipeline-runner/internal/container"
	"github.com/bureau-foundation/pipeline-runner/internal/dind"
	"github.com/bureau-foundation/pipeline-runner/internal/imageprovider"
	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
	"github.com/bureau-foundation/pipeline-runner/internal/volume"
)

// settleWindow is how long a service container must stay running
// after start before it is considered healthy (spec.md §4.3: "a 1
// second settle window, not a readiness probe").
const settleWindow = time.Second

// Handle is a started service: its container id and resources to
// release on teardown. Every service shares the step container's
// network namespace (network_mode=container:<step>), so there is no
// per-handle network field — localhost is the only way the step
// container and its services ever reach one another (spec.md §4.3).
type Handle struct {
	Spec        pipelinedef.ServiceSpec
	ContainerID string
	Env         []string // extra env the step container needs (dind's DOCKER_HOST)
}

// Runtime starts, health-gates, and tears down a step's services.
type Runtime struct {
	client   *container.Client
	provider *imageprovider.Provider
	run      *runctx.Run
	volumes  *volume.Manager
	logger   *slog.Logger
}

// New creates a Runtime.
func New(client *container.Client, provider *imageprovider.Provider, run *runctx.Run, volumes *volume.Manager, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{client: client, provider: provider, run: run, volumes: volumes, logger: logger}
}

// EnsureStepNetwork creates (or reuses) the per-step bridge network
// that the step container attaches to, returning its name. Services
// never join this network object directly — each instead shares the
// step container's network namespace (network_mode=container:<step>),
// exactly as the original runner's ContainerRunner/ServiceRunner pair
// does it, so the network exists solely to give the step container
// itself an attachment point to tear down later. Returns "" if the
// step declares no services, since a step with nothing to reach needs
// no dedicated network.
func (r *Runtime) EnsureStepNetwork(ctx context.Context, stepID string, services []pipelinedef.ServiceSpec) (string, error) {
	if len(services) == 0 {
		return "", nil
	}
	name := "pipeline-runner-" + stepID
	if _, err := r.client.EnsureNetwork(ctx, name); err != nil {
		return "", fmt.Errorf("creating step network: %w", err)
	}
	return name, nil
}

// StartAll starts every service a step declares, in declaration
// order, joining each to stepContainerID's network namespace so it is
// reachable only via localhost from the step (spec.md §4.3), and
// returns their handles. On any failure it tears down the services
// already started before returning the error — a step never runs with
// a partial service set.
func (r *Runtime) StartAll(ctx context.Context, stepID, stepContainerID string, services []pipelinedef.ServiceSpec) ([]Handle, error) {
	var handles []Handle

	for _, spec := range services {
		handle, err := r.start(ctx, stepID, spec, stepContainerID)
		if err != nil {
			r.TeardownAll(context.Background(), handles)
			return nil, err
		}
		handles = append(handles, handle)
	}

	for _, handle := range handles {
		if err := r.awaitSettled(ctx, handle.ContainerID); err != nil {
			r.TeardownAll(context.Background(), handles)
			return nil, &pipeerr.ServiceNotReadyError{Service: handle.Spec.Name, Err: err}
		}
	}

	return handles, nil
}

func (r *Runtime) start(ctx context.Context, stepID string, spec pipelinedef.ServiceSpec, stepContainerID string) (Handle, error) {
	ref, err := r.provider.Ensure(ctx, spec.Image)
	if err != nil {
		return Handle{}, err
	}

	name := runctx.ContainerName(stepID, "svc-"+spec.Name)

	env := make([]string, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}

	createOpts := container.CreateOptions{
		Name:        name,
		Image:       ref,
		Env:         env,
		NetworkMode: "container:" + stepContainerID,
		Memory:      int64(spec.MemoryMB) * 1024 * 1024,
		AutoRemove:  false,
	}
	if spec.Command != "" {
		createOpts.Cmd = []string{"sh", "-c", spec.Command}
	}
	if spec.IsDocker() {
		createOpts.Privileged = true
		volName := dind.SocketVolumeName(r.run)
		createOpts.Binds = []string{volName + ":" + dind.SocketMountPath}
	}

	id, err := r.client.Create(ctx, createOpts)
	if err != nil {
		return Handle{}, &pipeerr.ContainerStartError{Name: name, Err: err}
	}
	if err := r.client.Start(ctx, id); err != nil {
		return Handle{}, &pipeerr.ContainerStartError{Name: name, Err: err}
	}

	r.captureLogs(id, spec.Name, stepID)

	handle := Handle{Spec: spec, ContainerID: id}
	if spec.IsDocker() {
		handle.Env = dind.StepEnv()
	}
	return handle, nil
}

// awaitSettled waits settleWindow and then confirms the container is
// still running — spec.md §4.3's health gate is "did it survive its
// first second", not a port probe, since service images vary too
// widely for a generic readiness check.
func (r *Runtime) awaitSettled(ctx context.Context, id string) error {
	select {
	case <-time.After(settleWindow):
	case <-ctx.Done():
		return ctx.Err()
	}

	running, err := r.client.IsRunning(ctx, id)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("container exited before settling")
	}
	return nil
}

// captureLogs streams a service container's combined output into the
// step's output directory for later inspection, stopping when the
// container exits or the run ends.
func (r *Runtime) captureLogs(containerID, serviceName, stepID string) {
	go func() {
		reader, err := r.client.Logs(context.Background(), containerID, true)
		if err != nil {
			r.logger.Warn("service log capture failed to start", "service", serviceName, "error", err)
			return
		}
		defer reader.Close()

		path := r.run.StepDir(stepID) + "/service-" + serviceName + ".log"
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			r.logger.Warn("service log capture failed to open file", "service", serviceName, "error", err)
			return
		}
		defer file.Close()

		_, _ = io.Copy(file, reader)
	}()
}

// TeardownAll stops and removes every started service handle, best
// effort — a failure tearing down one service never prevents the
// others from being reclaimed.
func (r *Runtime) TeardownAll(ctx context.Context, handles []Handle) {
	for _, handle := range handles {
		if err := r.client.Stop(ctx, handle.ContainerID, 5); err != nil {
			r.logger.Warn("stopping service container failed", "service", handle.Spec.Name, "error", err)
		}
		if err := r.client.Remove(ctx, handle.ContainerID); err != nil {
			r.logger.Warn("removing service container failed", "service", handle.Spec.Name, "error", err)
		}
	}
}
