// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks, plus the replication counters recorded by the controller and
// instance processes.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the process has finished its initial
// catch-up and can serve.
type ReadinessChecker func() bool

// Metrics holds the replication counters.
type Metrics struct {
	// GroupUpdates counts processed group records by result:
	// created, deleted, applied, stale, skipped.
	GroupUpdates *prometheus.CounterVec
	// Broadcasts counts fan-out batches by message kind.
	Broadcasts *prometheus.CounterVec
	// SnapshotRequests counts catch-up queries by message kind.
	SnapshotRequests *prometheus.CounterVec
	// ConsoleFailures counts failed game-process command round-trips.
	ConsoleFailures prometheus.Counter
	// Origins tracks the number of known group origins.
	Origins prometheus.Gauge
}

// NewMetrics creates and registers the replication metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GroupUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expcluster_group_updates_total",
				Help: "Total number of group update records processed by result",
			},
			[]string{"result"},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expcluster_broadcasts_total",
				Help: "Total number of broadcast batches by message kind",
			},
			[]string{"kind"},
		),
		SnapshotRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expcluster_snapshot_requests_total",
				Help: "Total number of snapshot requests by message kind",
			},
			[]string{"kind"},
		),
		ConsoleFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "expcluster_console_failures_total",
				Help: "Total number of failed game console round-trips",
			},
		),
		Origins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "expcluster_origins",
				Help: "Number of origins with a backing group store",
			},
		),
	}

	reg.MustRegister(m.GroupUpdates, m.Broadcasts, m.SnapshotRequests, m.ConsoleFailures, m.Origins)
	return m
}

// Server serves /metrics and health probes for one process.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server with its own registry so tests
// never collide on the global one.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the replication counters registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel receives any serve error and is
// closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("observability").Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.In("observability").Wrap(err)
		}
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
