// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imageprovider implements spec.md §4.1, the Image Provider:
// resolving an ImageSpec to a local image reference, pulling on first
// use, coalescing concurrent identical pulls so a parallel step group
// referencing the same image pulls it exactly once, and deriving
// registry credentials (explicit, ECR, or anonymous).
package imageprovider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/pipeline-runner/internal/container"
	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
)

// pullState tracks an in-flight or completed pull for a given
// coalescing key (spec.md §4.1: "equality is by (Name, Platform);
// credential fields never participate").
type pullState struct {
	done chan struct{}
	ref  string
	err  error
}

// Provider resolves ImageSpecs to local references, pulling as
// needed. A single Provider is shared across an entire run so
// concurrent steps in a parallel group coalesce on the same pull.
type Provider struct {
	client *container.Client
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]*pullState
}

// New creates a Provider bound to a Docker client.
func New(client *container.Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, logger: logger, inFlight: make(map[string]*pullState)}
}

// coalesceKey is spec.md §4.1's pull-coalescing key.
func coalesceKey(spec pipelinedef.ImageSpec) string {
	return spec.Name + "|" + spec.Platform
}

// Ensure returns a local image reference usable in a container create
// call, pulling spec.Name if it is not already present locally.
// Concurrent calls with the same (Name, Platform) share a single pull;
// all callers see its result once it completes.
func (p *Provider) Ensure(ctx context.Context, spec pipelinedef.ImageSpec) (string, error) {
	key := coalesceKey(spec)

	p.mu.Lock()
	if state, ok := p.inFlight[key]; ok {
		p.mu.Unlock()
		<-state.done
		return state.ref, state.err
	}
	state := &pullState{done: make(chan struct{})}
	p.inFlight[key] = state
	p.mu.Unlock()

	ref, err := p.ensureOnce(ctx, spec)
	state.ref, state.err = ref, err
	close(state.done)
	return ref, err
}

func (p *Provider) ensureOnce(ctx context.Context, spec pipelinedef.ImageSpec) (string, error) {
	if spec.Name == "" {
		return "", &pipeerr.ImageNotFoundError{Image: "", Err: fmt.Errorf("empty image name")}
	}

	if _, err := p.client.ImageInspect(ctx, spec.Name); err == nil {
		p.logger.Debug("image already present", "image", spec.Name)
		return spec.Name, nil
	}

	auth, err := registryAuth(ctx, spec.Name, spec)
	if err != nil {
		return "", &pipeerr.ImagePullError{Image: spec.Name, Err: err}
	}

	p.logger.Info("pulling image", "image", spec.Name, "platform", spec.Platform)
	if err := p.client.Pull(ctx, spec.Name, container.PullOptions{
		RegistryAuth: auth,
		Platform:     spec.Platform,
	}); err != nil {
		return "", &pipeerr.ImagePullError{Image: spec.Name, Err: err}
	}

	if _, err := p.client.ImageInspect(ctx, spec.Name); err != nil {
		return "", &pipeerr.ImageNotFoundError{Image: spec.Name, Err: err}
	}
	return spec.Name, nil
}
