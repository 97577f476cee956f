// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server which handles registration, login, session
management, and password resets against the PostgreSQL user store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().String("listen-addr", defaults.ListenAddr, "HTTP listen address")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")
	cmd.Flags().String("auth-mode", defaults.AuthMode, "authentication mode (none, basic, or session)")
	cmd.Flags().String("session-cookie-name", defaults.SessionCookieName, "name of the session cookie")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")

	return cmd
}

// ServeDeps holds injectable dependencies for the serve command.
// A nil field selects the production implementation.
type ServeDeps struct {
	PoolFactory          func(ctx context.Context, url string) (authpg.Pool, func(), error)
	ObservabilityFactory func(addr string) ObservabilityServer
	DatabaseURLGetter    func() string
}

// ObservabilityServer is the subset of observability.Server the serve
// command needs, extracted so tests can substitute a fake.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// runServeWithDeps starts the HTTP server with injectable dependencies.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string) (authpg.Pool, func(), error) {
			pool, err := store.NewPool(ctx, url)
			if err != nil {
				return nil, nil, err
			}
			return pool, pool.Close, nil
		}
	}
	if deps.ObservabilityFactory == nil {
		deps.ObservabilityFactory = func(addr string) ObservabilityServer {
			return observability.NewServer(addr, func() bool { return true })
		}
	}
	if deps.DatabaseURLGetter == nil {
		deps.DatabaseURLGetter = func() string {
			return os.Getenv("DATABASE_URL")
		}
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.SetDefault("gatehouse", version, cfg.LogFormat)
	logger := slog.Default()

	databaseURL := cfg.DatabaseURL
	if databaseURL == "" {
		databaseURL = deps.DatabaseURLGetter()
	}
	if databaseURL == "" {
		return fmt.Errorf("database URL is required (set database_url or DATABASE_URL)")
	}

	pool, closePool, err := deps.PoolFactory(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closePool()

	logger.Info("connected to database")

	users := authpg.NewUserRepository(pool)
	hasher := auth.NewArgon2idHasher()

	accounts, err := auth.NewAccountService(users, hasher, logger)
	if err != nil {
		return fmt.Errorf("failed to create account service: %w", err)
	}

	// The in-memory session map only backs the session-auth strategy;
	// other modes get a nil manager so nothing maintains unread state.
	var sessions *auth.SessionManager
	if cfg.AuthMode == config.AuthModeSession {
		sessions = auth.NewSessionManager()
	}
	authenticator, err := buildAuthenticator(cfg, users, hasher, sessions, logger)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityFactory(cfg.MetricsAddr)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return fmt.Errorf("failed to start observability server: %w", startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	handler := httpapi.NewHandler(accounts, cfg.SessionCookieName, logger, metrics, sessions)
	router := httpapi.NewRouter(handler, authenticator, logger, metrics)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- serveErr
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started")
	logger.Info("server ready",
		"listen_addr", listener.Addr().String(),
		"auth_mode", cfg.AuthMode,
	)

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildAuthenticator selects the authentication strategy for the
// configured mode.
func buildAuthenticator(cfg *config.Config, users auth.UserRepository, hasher auth.PasswordHasher, sessions *auth.SessionManager, logger *slog.Logger) (auth.Authenticator, error) {
	base := auth.NewNoAuth(cfg.SessionCookieName, cfg.ExcludedPaths)

	switch cfg.AuthMode {
	case config.AuthModeNone:
		return base, nil
	case config.AuthModeBasic:
		return auth.NewBasicAuth(base, users, hasher, logger)
	case config.AuthModeSession:
		return auth.NewSessionAuth(base, users, sessions, logger)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// monitorServerErrors cancels the context when a background server
// reports an error, triggering graceful shutdown of the whole process.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
