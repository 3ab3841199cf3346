// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/explosivegaming/expcluster/internal/config"
	"github.com/explosivegaming/expcluster/internal/controller"
	"github.com/explosivegaming/expcluster/internal/logging"
	"github.com/explosivegaming/expcluster/internal/observability"
	"github.com/explosivegaming/expcluster/internal/xdg"
	"github.com/explosivegaming/expcluster/pkg/errutil"
)

// Default values for controller command flags.
const (
	defaultControllerMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat             = "json"
)

// ControllerDeps allows tests to inject alternative implementations.
type ControllerDeps struct {
	PersistenceFactory func(dir string, allowRoleInconsistency bool) *controller.Persistence
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker) *observability.Server
}

// NewControllerCmd creates the controller subcommand.
func NewControllerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Start the controller process (authoritative stores)",
		Long: `Start the controller process which owns the authoritative permission
group stores, reconciles updates from instances, and serves catch-up
snapshots to subscribers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runControllerWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("data-dir", "", "data directory (default: XDG_DATA_HOME/expcluster)")
	cmd.Flags().String("metrics-addr", defaultControllerMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().Bool("allow-role-inconsistency", false, "permit explicit user-group assignment")

	return cmd
}

// runControllerWithDeps starts the controller process with injectable
// dependencies. If deps is nil, default implementations are used.
func runControllerWithDeps(ctx context.Context, cmd *cobra.Command, deps *ControllerDeps) error {
	if deps == nil {
		deps = &ControllerDeps{}
	}
	if deps.PersistenceFactory == nil {
		deps.PersistenceFactory = controller.NewPersistence
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = observability.NewServer
	}

	cfg, err := config.LoadController(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("expcluster-controller", version, cfg.LogFormat)

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = xdg.DataDir()
	}
	if err := xdg.EnsureDir(dataDir); err != nil {
		return err
	}

	slog.Info("starting controller process",
		"data_dir", dataDir,
		"allow_role_inconsistency", cfg.AllowRoleInconsistency,
	)

	var ready atomic.Bool
	var obs *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obs = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		metrics = obs.Metrics()
	}

	coord := controller.New(controller.Options{
		Logger:                 slog.Default(),
		Metrics:                metrics,
		AllowRoleInconsistency: cfg.AllowRoleInconsistency,
	})

	persistence := deps.PersistenceFactory(dataDir, cfg.AllowRoleInconsistency)
	if err := persistence.Load(coord); err != nil {
		return err
	}
	coord.EnsureDefaultGroups(nil)
	slog.Info("persisted state loaded")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if obs != nil {
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
		slog.Info("observability server started", "addr", obs.Addr())
	}
	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	cmd.Println("Controller process started")
	slog.Info("controller process ready")

loop:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				// Checkpoint without stopping.
				if err := persistence.Save(coord); err != nil {
					errutil.LogError(slog.Default(), "checkpoint failed", err)
				} else {
					slog.Info("state checkpointed")
				}
				continue
			}
			slog.Info("received shutdown signal", "signal", sig)
			break loop
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down")
			break loop
		}
	}

	slog.Info("shutting down...")
	ready.Store(false)

	if err := persistence.Save(coord); err != nil {
		errutil.LogError(slog.Default(), "final save failed", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the process context when a background server
// fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
