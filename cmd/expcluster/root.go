// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the ExpCluster CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expcluster",
		Short: "ExpCluster - replicated permission groups for game-server clusters",
		Long: `ExpCluster keeps permission groups consistent across a cluster of
game-server instances. The controller holds the authoritative stores;
each instance mirrors its effective sync target into the game process.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewControllerCmd())
	cmd.AddCommand(NewInstanceCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
