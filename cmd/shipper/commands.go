package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/artpar/shipper/internal/core/pipeline"
	"github.com/artpar/shipper/internal/shell/docker"
	"github.com/artpar/shipper/internal/shell/notify"
	"github.com/artpar/shipper/internal/shell/probe"
	"github.com/artpar/shipper/internal/shell/registry"
	"github.com/artpar/shipper/internal/shell/remote"
	"github.com/artpar/shipper/internal/shell/store"
)

// =============================================================================
// release
// =============================================================================

// runRelease wires the pipeline's collaborators from config and executes one
// release run.
func runRelease(ctx context.Context, cfg *Config, logger *slog.Logger, commit string) int {
	if err := cfg.ValidateRelease(); err != nil {
		logger.Error("invalid release configuration", "error", err)
		return ExitConfigError
	}
	if commit == "" {
		commit = "unknown"
	}

	registryClient := registry.NewClient(registry.Config{
		BaseURL: cfg.Registry.URL,
		Credentials: registry.Credentials{
			Username: cfg.Registry.Username,
			Password: cfg.Registry.Password,
		},
	})

	dockerClient, err := docker.NewClient(cfg.Build.DockerHost, cfg.Registry.Username, cfg.Registry.Password, logger)
	if err != nil {
		logger.Error("failed to create docker client", "error", err)
		return ExitReleaseFailed
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		logger.Error("docker daemon unreachable", "error", err)
		return ExitReleaseFailed
	}

	deployer, err := remote.NewDeployer(remote.Config{
		Host:    cfg.Deploy.Host,
		Port:    cfg.Deploy.Port,
		User:    cfg.Deploy.User,
		KeyPath: cfg.Deploy.KeyPath,
		Container: remote.ContainerSpec{
			Name:          cfg.Deploy.ContainerName,
			HostPort:      cfg.Deploy.AppPort,
			ContainerPort: cfg.Deploy.AppPort,
		},
		CommandTimeout: cfg.Deploy.CommandTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create deployer", "error", err)
		return ExitConfigError
	}
	defer deployer.Close()

	journal, err := store.NewSQLiteJournal(cfg.Journal.DSN)
	if err != nil {
		logger.Error("failed to open release journal", "error", err)
		return ExitDatabaseError
	}
	defer journal.Close()

	deps := pipeline.Deps{
		Registry:  registryClient,
		Builder:   dockerClient,
		Publisher: dockerClient,
		Deployer:  deployer,
		Journal:   journal,
	}
	if cfg.Probe.Enabled {
		deps.Prober = probe.New(probe.Config{
			URL:        fmt.Sprintf("http://%s:%d%s", cfg.Deploy.Host, cfg.Deploy.AppPort, cfg.Probe.Path),
			MaxElapsed: cfg.Probe.MaxElapsed,
		}, logger)
	}
	if cfg.Notify.URL != "" {
		deps.Notifier = notify.NewWebhookNotifier(notify.Config{
			URL:   cfg.Notify.URL,
			Token: cfg.Notify.Token,
		})
	}

	p := pipeline.New(deps, logger)
	run, err := p.Run(ctx, pipeline.Spec{
		Repository: cfg.Registry.Repository(),
		Commit:     commit,
		ContextDir: cfg.Build.ContextDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "release %s failed: %v\n", run.ID, err)
		if run.RolledBack {
			fmt.Fprintf(os.Stderr, "version tag %s was reverted\n", run.Version)
		}
		return ExitReleaseFailed
	}

	fmt.Printf("released %s as %s\n", run.Repository, run.Version)
	return ExitSuccess
}

// =============================================================================
// history
// =============================================================================

// runHistory prints recent release runs from the journal.
func runHistory(ctx context.Context, cfg *Config, logger *slog.Logger) int {
	journal, err := store.NewSQLiteJournal(cfg.Journal.DSN)
	if err != nil {
		logger.Error("failed to open release journal", "error", err)
		return ExitDatabaseError
	}
	defer journal.Close()

	runs, err := journal.ListRuns(ctx, store.ListOptions{Limit: 20})
	if err != nil {
		logger.Error("failed to list runs", "error", err)
		return ExitDatabaseError
	}

	if len(runs) == 0 {
		fmt.Println("no release runs recorded")
		return ExitSuccess
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-8s  %-11s  %s",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Version,
			run.Status,
			run.Commit,
		)
		if run.RolledBack {
			line += "  (rolled back)"
		}
		fmt.Println(line)
	}
	return ExitSuccess
}

// =============================================================================
// serve
// =============================================================================

// runServe exposes the read-only run history API until interrupted.
func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) int {
	journal, err := store.NewSQLiteJournal(cfg.Journal.DSN)
	if err != nil {
		logger.Error("failed to open release journal", "error", err)
		return ExitDatabaseError
	}
	defer journal.Close()

	server := NewStatusServer(cfg, journal, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("status server error", "error", err)
		return ExitHTTPServerError
	}
	return ExitSuccess
}
