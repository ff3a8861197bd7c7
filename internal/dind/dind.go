// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dind wires up the Docker-in-Docker service spec.md §4.3
// names: a "docker" service backed by a docker:dind image, its daemon
// socket shared with the step container via a named volume rather
// than a bind mount (so it works identically on Docker Desktop's
// virtualized filesystem), and the DOCKER_HOST environment variable
// the step's own script needs to reach it.
package dind

import (
	"fmt"

	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
)

// SocketVolumeName is the named volume the dind sidecar's daemon
// socket is written into, shared read-write with the step container.
func SocketVolumeName(run *runctx.Run) string {
	return run.DockerVolumeName()
}

// SocketPath is the well-known path, inside the shared volume mount,
// where the dockerd entrypoint in the docker:dind image listens.
const SocketPath = "/var/run/docker.sock"

// SocketMountPath is the directory both containers mount the shared
// volume at; SocketPath lies inside it.
const SocketMountPath = "/var/run"

// StepEnv returns the environment variables the step container needs
// to reach the dind sidecar over the shared socket instead of a
// network address (services are not hostname-reachable per spec.md
// §4.3, and a Unix socket avoids the loopback-only restriction
// entirely).
func StepEnv() []string {
	return []string{fmt.Sprintf("DOCKER_HOST=unix://%s", SocketPath)}
}

// CacheVolumeName is the named volume backing the "docker" builtin
// cache (SPEC_FULL §C): unlike every other builtin cache, it is a
// named volume rather than a key-derived host directory, and it is a
// separate volume from the live daemon socket's (the socket volume's
// name plus "-cache"), so cached layers never share a volume with the
// socket.
func CacheVolumeName(run *runctx.Run) string {
	return run.DockerVolumeName() + "-cache"
}
