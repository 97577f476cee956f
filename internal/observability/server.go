// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// Metrics contains the authentication metrics Gatehouse exports.
type Metrics struct {
	// LoginAttempts counts login attempts by outcome (success, failure).
	LoginAttempts *prometheus.CounterVec

	// Registrations counts registration attempts by outcome
	// (created, duplicate, error).
	Registrations *prometheus.CounterVec

	// SessionsCreated and SessionsDestroyed count session lifecycle events.
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter

	// ActiveSessions tracks the size of the in-memory session map.
	ActiveSessions prometheus.Gauge

	// AuthDecisions counts middleware outcomes by result
	// (authenticated, unauthenticated, forbidden, skipped).
	AuthDecisions *prometheus.CounterVec
}

// NewMetrics creates and registers the Gatehouse metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_registrations_total",
				Help: "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsDestroyed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_sessions_destroyed_total",
				Help: "Total number of sessions destroyed",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_active_sessions",
				Help: "Number of live entries in the session map",
			},
		),
		AuthDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_auth_decisions_total",
				Help: "Total number of authentication middleware decisions by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Registrations,
		m.SessionsCreated,
		m.SessionsDestroyed,
		m.ActiveSessions,
		m.AuthDecisions,
	)

	return m
}

// Server serves the metrics endpoint and Kubernetes-style health probes
// on its own listener, separate from the public API.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates a new observability server. It owns a private
// registry so tests and embedders never collide on the global one; the
// standard Go and process collectors are registered alongside the
// service metrics.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true)
	})
	r.Get("/healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, s.isReady == nil || s.isReady())
	})
	return r
}

// Start begins serving observability endpoints. It returns an error
// channel that receives any error from the HTTP server after startup;
// the channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.With("addr", s.addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.httpSrv = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server. Stopping a
// server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_observability_server").Wrap(err)
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func writeHealth(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		//nolint:errcheck // probe write failures are the client's problem
		w.Write([]byte("not ready\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // probe write failures are the client's problem
	w.Write([]byte("ok\n"))
}
