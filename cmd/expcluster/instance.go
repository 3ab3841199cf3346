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

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/explosivegaming/expcluster/internal/config"
	"github.com/explosivegaming/expcluster/internal/gamelink"
	"github.com/explosivegaming/expcluster/internal/instance"
	"github.com/explosivegaming/expcluster/internal/logging"
	"github.com/explosivegaming/expcluster/internal/observability"
)

const defaultInstanceMetricsAddr = "127.0.0.1:9101"

// InstanceDeps supplies the two external collaborators of an instance host:
// the game console and the controller link. The host process that embeds
// this command provides real implementations; tests use in-process fakes.
type InstanceDeps struct {
	Console gamelink.Console
	Link    instance.Link
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker) *observability.Server
}

// NewInstanceCmd creates the instance subcommand.
func NewInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Start an instance host (projects groups into one game process)",
		Long: `Start an instance host which subscribes to the controller, mirrors its
effective sync target into the attached game process, and forwards
locally-originated edits back to the controller.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstanceWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("id", "", "cluster-wide instance id")
	cmd.Flags().Bool("sync-groups", false, "mirror the Global origin instead of a private one")
	cmd.Flags().String("metrics-addr", defaultInstanceMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")

	return cmd
}

// runInstanceWithDeps starts the instance host with injected collaborators.
// Console and Link have no in-repo default: they belong to the embedding
// host process.
func runInstanceWithDeps(ctx context.Context, cmd *cobra.Command, deps *InstanceDeps) error {
	if deps == nil || deps.Console == nil || deps.Link == nil {
		return oops.In("instance").Code("INVALID_CONFIG").
			New("the embedding host must provide a game console and controller link")
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = observability.NewServer
	}

	cfg, err := config.LoadInstance(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("expcluster-instance", version, cfg.LogFormat)

	slog.Info("starting instance host",
		"instance", cfg.ID,
		"sync_groups", cfg.SyncGroups,
	)

	var ready atomic.Bool
	var obs *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obs = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		metrics = obs.Metrics()
	}

	proj := instance.New(instance.Options{
		InstanceID: cfg.ID,
		SyncGroups: cfg.SyncGroups,
		Console:    deps.Console,
		Link:       deps.Link,
		Logger:     slog.Default(),
		Metrics:    metrics,
	})

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

	if err := proj.Start(ctx); err != nil {
		return err
	}
	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Instance host started")
	slog.Info("instance host ready", "instance", cfg.ID)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	ready.Store(false)

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
