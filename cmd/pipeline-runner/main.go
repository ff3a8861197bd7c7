// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command pipeline-runner executes a bitbucket-pipelines.yml file
// locally. It is the CLI collaborator spec.md §6 names: it discovers
// project context, parses and selects the pipeline document, takes
// variable values from --var flags, and wires the core's six components together.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pipeline-runner/internal/coordinator"
	"github.com/bureau-foundation/pipeline-runner/internal/container"
	"github.com/bureau-foundation/pipeline-runner/internal/executor"
	"github.com/bureau-foundation/pipeline-runner/internal/imageprovider"
	"github.com/bureau-foundation/pipeline-runner/internal/logging"
	"github.com/bureau-foundation/pipeline-runner/internal/oidc"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
	"github.com/bureau-foundation/pipeline-runner/internal/runctx"
	"github.com/bureau-foundation/pipeline-runner/internal/service"
	"github.com/bureau-foundation/pipeline-runner/internal/variables"
	"github.com/bureau-foundation/pipeline-runner/internal/volume"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "list":
		err = listCommand(os.Args[2:])
	case "--help", "-h", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline-runner: %v\n", err)
		if _, ok := err.(*invalidInvocationError); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pipeline-runner <run|list> [flags]")
}

type invalidInvocationError struct{ error }

// config holds every --flag the "run" subcommand accepts.
type config struct {
	file         string
	projectDir   string
	pipeline     string
	dataRoot     string
	cacheRoot    string
	jsonLogs     bool
	debug        bool
	cpuLimits    bool
	cleanup      bool
	interactive  bool
	sshKeyPath   string
	sshAgentSock string
	oidcAudience string
	varFlags     []string
}

func parseRunFlags(args []string) (*config, error) {
	cfg := &config{}
	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.file, "file", "bitbucket-pipelines.yml", "path to the pipeline definition")
	flagSet.StringVar(&cfg.projectDir, "project", ".", "project root directory")
	flagSet.StringVar(&cfg.pipeline, "pipeline", "", "custom pipeline name to run (overrides branch/tag matching)")
	flagSet.StringVar(&cfg.dataRoot, "data-root", defaultDataRoot(), "root directory for run output")
	flagSet.StringVar(&cfg.cacheRoot, "cache-root", defaultCacheRoot(), "root directory for caches")
	flagSet.BoolVar(&cfg.jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
	flagSet.BoolVar(&cfg.debug, "debug", false, "enable debug-level logging")
	flagSet.BoolVar(&cfg.cpuLimits, "cpu-limits", false, "enforce CPU/memory limits proportional to step size")
	flagSet.BoolVar(&cfg.cleanup, "cleanup", false, "remove build/artifact directories when the run ends")
	flagSet.BoolVar(&cfg.interactive, "interactive", isTerminal(), "attach the controlling terminal for prompts and breakpoints")
	flagSet.StringVar(&cfg.sshKeyPath, "ssh-key", "", "path to an SSH private key to forward into every step")
	flagSet.StringVar(&cfg.sshAgentSock, "ssh-agent-socket", os.Getenv("SSH_AUTH_SOCK"), "host SSH agent socket to forward")
	flagSet.StringVar(&cfg.oidcAudience, "oidc-audience", "pipeline-runner", "audience claim for issued OIDC tokens")
	flagSet.StringArrayVar(&cfg.varFlags, "var", nil, "NAME=value pipeline variable (repeatable)")

	if err := flagSet.Parse(args); err != nil {
		return nil, &invalidInvocationError{err}
	}
	return cfg, nil
}

func defaultDataRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.local/share/pipeline-runner"
	}
	return "/tmp/pipeline-runner/data"
}

func defaultCacheRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.cache/pipeline-runner"
	}
	return "/tmp/pipeline-runner/cache"
}

func isTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func parseUserVars(flags []string) map[string]string {
	out := make(map[string]string, len(flags))
	for _, raw := range flags {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}

func listCommand(args []string) error {
	cfg, err := parseRunFlags(args)
	if err != nil {
		return err
	}
	doc, err := pipelinedef.ReadFile(cfg.file)
	if err != nil {
		return fmt.Errorf("reading pipeline file: %w", err)
	}
	for _, name := range pipelinedef.Names(doc) {
		fmt.Println(name)
	}
	return nil
}

func runCommand(args []string) error {
	cfg, err := parseRunFlags(args)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Writer: os.Stderr,
		JSON:   cfg.jsonLogs,
		Debug:  cfg.debug,
	})

	doc, err := pipelinedef.ReadFile(cfg.file)
	if err != nil {
		return fmt.Errorf("reading pipeline file: %w", err)
	}

	project, err := discoverProject(cfg.projectDir)
	if err != nil {
		return err
	}

	groupDefs, ok := pipelinedef.Select(doc, cfg.pipeline, project.Branch, "", "")
	if !ok {
		return fmt.Errorf("no matching pipeline for branch %q (and no pipelines.default)", project.Branch)
	}

	groups, err := pipelinedef.Resolve(doc, groupDefs)
	if err != nil {
		return err
	}
	if issues := pipelinedef.Validate(groups); len(issues) > 0 {
		return fmt.Errorf("pipeline validation failed:\n  %s", strings.Join(issues, "\n  "))
	}

	buildNumber, err := nextBuildNumber(cfg.dataRoot, project.Slug)
	if err != nil {
		return err
	}

	run := runctx.New(runctx.Config{
		Project:       project,
		BuildNumber:   buildNumber,
		DataRoot:      cfg.dataRoot,
		CacheRoot:     cfg.cacheRoot,
		PipelineName:  cfg.pipeline,
		Logger:        logger,
		CleanupOnExit: cfg.cleanup,
	})

	ledger := volume.NewLedger()
	defer ledger.ReleaseAll(logger)

	dockerClient, err := container.New()
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer dockerClient.Close()

	provider := imageprovider.New(dockerClient, logger)
	volumes := volume.New(run, ledger)
	services := service.New(dockerClient, provider, run, volumes, logger)

	artifactRoot, err := volumes.ArtifactStagingDir()
	if err != nil {
		return err
	}

	var sshKey []byte
	if cfg.sshKeyPath != "" {
		sshKey, err = os.ReadFile(cfg.sshKeyPath)
		if err != nil {
			return fmt.Errorf("reading ssh key: %w", err)
		}
	}

	signer, err := newOIDCSigner()
	if err != nil {
		logger.Warn("oidc signer unavailable, OIDC steps will run without a token", "error", err)
	}

	exec := executor.New(executor.Config{
		Client:         dockerClient,
		Provider:       provider,
		Volumes:        volumes,
		Ledger:         ledger,
		Services:       services,
		Run:            run,
		OIDCSigner:     signer,
		OIDCAudience:   cfg.oidcAudience,
		Logger:         logger,
		Interactive:    cfg.interactive,
		CPULimits:      cfg.cpuLimits,
		ArtifactRoot:   artifactRoot,
		SourceRoot:     project.RootPath,
		SSHPrivateKey:  sshKey,
		SSHAgentSocket: cfg.sshAgentSock,
	})

	coord := coordinator.New(exec, run, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Warn("received cancellation signal, stopping the run")
		cancel()
	}()

	result, err := coord.Run(ctx, groups, coordinator.VariableInputs{
		Declarations: doc.Variables,
		System: variables.System{
			BuildNumber:  fmt.Sprintf("%d", buildNumber),
			PipelineUUID: run.ID,
			RepoSlug:     project.Slug,
			RepoOwner:    project.Owner,
			RepoFullName: project.FullName,
			CloneDir:     project.RootPath,
			Branch:       project.Branch,
			Commit:       project.Commit,
		},
		UserSupplied: parseUserVars(cfg.varFlags),
	})
	if err != nil {
		return err
	}

	if result.Failed {
		return fmt.Errorf("pipeline failed")
	}
	return nil
}

// newOIDCSigner generates an ephemeral RSA key for the lifetime of
// the process. A real deployment would load a persisted key; this
// module has no credential store collaborator to load one from
// (DESIGN.md, "OIDC signing key lifetime"), so every run mints its own and every issued
// token is only verifiable against that run's own public key.
func newOIDCSigner() (*oidc.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return oidc.NewSigner(key, "pipeline-runner"), nil
}
