// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// ProcessStatus holds the probed state of one process.
type ProcessStatus struct {
	Component string `json:"component"`
	Live      bool   `json:"live"`
	Ready     bool   `json:"ready"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	controllerAddr string
	instanceAddr   string
	jsonOutput     bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of running ExpCluster processes",
		Long:  `Probe the health endpoints of the controller and instance processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.controllerAddr, "controller-addr", defaultControllerMetricsAddr, "controller health address")
	cmd.Flags().StringVar(&cfg.instanceAddr, "instance-addr", defaultInstanceMetricsAddr, "instance health address")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	statuses := []ProcessStatus{
		queryProcessStatus("controller", cfg.controllerAddr),
		queryProcessStatus("instance", cfg.instanceAddr),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(statuses))
	return nil
}

// queryProcessStatus probes the liveness and readiness endpoints of one
// process.
func queryProcessStatus(component, addr string) ProcessStatus {
	status := ProcessStatus{Component: component}
	client := &http.Client{Timeout: 2 * time.Second}

	live, err := probe(client, "http://"+addr+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Live = live

	ready, err := probe(client, "http://"+addr+"/healthz/readiness")
	if err == nil {
		status.Ready = ready
	}
	return status
}

func probe(client *http.Client, url string) (bool, error) {
	resp, err := client.Get(url)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(statuses []ProcessStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROCESS\tLIVE\tREADY\tNOTE")
	_, _ = fmt.Fprintln(w, "-------\t----\t-----\t----")
	for _, status := range statuses {
		note := "-"
		if status.Error != "" {
			note = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%v\t%v\t%s\n",
			status.Component, status.Live, status.Ready, note)
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
