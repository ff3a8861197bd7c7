// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runctx is the core's Run Context (spec.md §2 item 6 / §3):
// per-invocation identity, working directories, and the clock used to
// derive deterministic identifiers. The run's resource ledger is not
// held here; it is a separate volume.Ledger. It is threaded explicitly through every core operation,
// replacing the teacher's ambient-global pattern (lib/clock's own doc
// comment names this same anti-pattern) with one value every
// component receives by parameter.
package runctx

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProjectContext is project identity supplied by the CLI collaborator
// (spec.md §6): working directory discovery, git metadata, and repo
// slug/owner resolution are out of the core's scope.
type ProjectContext struct {
	Slug         string
	Owner        string
	FullName     string
	RootPath     string
	Branch       string
	Commit       string
	RemoteOrigin string
}

// Run is spec.md's Run entity. It owns every volume, container, and
// log file created during the run (by reference, via the ledgers each
// component keeps) and is destroyed only after best-effort cleanup.
type Run struct {
	ID            string
	Project       ProjectContext
	BuildNumber   int
	StartTime     time.Time
	DataRoot      string
	CacheRoot     string
	PipelineName  string
	Clock         Clock
	Logger        *slog.Logger
	CleanupOnExit bool // remove build/artifact dirs when the run ends
}

// Config configures a new Run.
type Config struct {
	Project       ProjectContext
	BuildNumber   int
	DataRoot      string
	CacheRoot     string
	PipelineName  string
	Clock         Clock
	Logger        *slog.Logger
	CleanupOnExit bool
}

// New creates a Run, deriving its ID from the project slug, build
// number, and start time. The ID is stable for the lifetime of the
// run (spec.md §3: "Run: run-id (stable string)").
func New(cfg Config) *Run {
	clock := cfg.Clock
	if clock == nil {
		clock = Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := clock.Now()
	return &Run{
		ID:            fmt.Sprintf("%s-%d-%d", cfg.Project.Slug, cfg.BuildNumber, now.Unix()),
		Project:       cfg.Project,
		BuildNumber:   cfg.BuildNumber,
		StartTime:     now,
		DataRoot:      cfg.DataRoot,
		CacheRoot:     cfg.CacheRoot,
		PipelineName:  cfg.PipelineName,
		Clock:         clock,
		Logger:        logger,
		CleanupOnExit: cfg.CleanupOnExit,
	}
}

// OutputDir is the run's root output directory: <data-root>/<project-slug>/<build-number>
// (spec.md §6).
func (r *Run) OutputDir() string {
	return fmt.Sprintf("%s/%s/%d", r.DataRoot, r.Project.Slug, r.BuildNumber)
}

// PipelineLogPath is <output-dir>/pipeline.log.
func (r *Run) PipelineLogPath() string {
	return r.OutputDir() + "/pipeline.log"
}

// StepDir is <output-dir>/steps/<step-id>.
func (r *Run) StepDir(stepID string) string {
	return r.OutputDir() + "/steps/" + stepID
}

// CacheRootForProject is <cache-root>/<project-slug>, the directory
// the Volume Manager allocates <cache-name>-<key> subdirectories
// under.
func (r *Run) CacheRootForProject() string {
	return r.CacheRoot + "/" + r.Project.Slug
}

// DockerVolumeName is the base name of the run's Docker-in-Docker
// volumes: pipeline-runner-<project-slug>-docker. The dind package
// uses it unchanged for the daemon socket volume, and with a "-cache"
// suffix for the volume backing the "docker" cache.
func (r *Run) DockerVolumeName() string {
	return "pipeline-runner-" + r.Project.Slug + "-docker"
}

// slugPattern matches characters that must be stripped or replaced
// when slugifying a step name for use in a step-id or container name.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, replaces runs of non-alphanumeric characters
// with a single hyphen, and trims leading/trailing hyphens.
func Slugify(s string) string {
	lowered := strings.ToLower(s)
	slug := slugPattern.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "step"
	}
	return slug
}

// StepID derives spec.md §6's step-id:
// <project-slug>-<build-number>-<group-index>-<step-index>-<slugified-step-name>.
func (r *Run) StepID(groupIndex, stepIndex int, stepName string) string {
	return fmt.Sprintf("%s-%d-%d-%d-%s", r.Project.Slug, r.BuildNumber, groupIndex, stepIndex, Slugify(stepName))
}

// ContainerName derives a container name for a step or service:
// the step-id plus a short random suffix, so repeated runs (and
// repeated steps within a run, e.g. retried parallel steps) never
// collide on the container runtime's namespace.
func ContainerName(stepID, role string) string {
	suffix := uuid.New().String()[:8]
	if role == "" {
		return fmt.Sprintf("%s-%s", stepID, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", stepID, role, suffix)
}
