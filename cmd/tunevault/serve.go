// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tunevault/tunevault/internal/auth"
	authpg "github.com/tunevault/tunevault/internal/auth/postgres"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/logging"
	"github.com/tunevault/tunevault/internal/observability"
	"github.com/tunevault/tunevault/internal/storage"
	"github.com/tunevault/tunevault/internal/store"
	"github.com/tunevault/tunevault/internal/web"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 5 * time.Second

// ServeDeps holds injectable dependencies for the serve command.
// Zero values select the production implementations.
type ServeDeps struct {
	StoreFactory    func(ctx context.Context, dsn string) (*store.Store, error)
	MigratorFactory func(dsn string) (AutoMigrator, error)
}

// AutoMigrator is the subset of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account and session API server",
		Long: `Start the HTTP API server. Handles registration, login, logout and
session introspection, and sweeps expired sessions in the background.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd, nil)
		},
	}

	f := cmd.Flags()
	f.String("http-addr", config.DefaultHTTPAddr, "API listen address")
	f.String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	f.String("database-url", "", "PostgreSQL connection string (or DATABASE_URL)")
	f.String("data-dir", "", "data directory (default: XDG_DATA_HOME/tunevault)")
	f.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	f.Duration("session-ttl", config.DefaultSessionTTL, "lifetime of new sessions")
	f.Duration("sweep-interval", config.DefaultSweepInterval, "how often expired sessions are purged")
	f.Bool("auto-migrate", true, "run pending migrations on startup")

	return cmd
}

// runServe starts the API server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = store.New
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(dsn string) (AutoMigrator, error) {
			return store.NewMigrator(dsn)
		}
	}

	logging.SetDefault("tunevault", version, cfg.LogFormat)
	logger := slog.Default()

	logger.Info("starting server",
		"http_addr", cfg.HTTPAddr,
		"log_format", cfg.LogFormat,
	)

	autoMigrate, _ := cmd.Flags().GetBool("auto-migrate")
	if autoMigrate {
		if err := runAutoMigrate(cfg.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	db, err := deps.StoreFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	logger.Info("connected to database")

	provisioner, err := storage.NewDirProvisioner(cfg.DataDir)
	if err != nil {
		return oops.Code("STORAGE_INIT_FAILED").With("data_dir", cfg.DataDir).Wrap(err)
	}

	users := authpg.NewUserRepository(db.Pool())
	sessions := authpg.NewSessionRepository(db.Pool())

	svc, err := auth.NewService(users, sessions, auth.NewArgon2idHasher(),
		auth.WithProvisioner(provisioner),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
			defer pingCancel()
			return db.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()

		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	handler, err := web.NewHandler(svc, logger, metrics)
	if err != nil {
		return err
	}
	apiServer, err := web.NewServer(cfg.HTTPAddr, handler, logger, metrics)
	if err != nil {
		return err
	}
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.Code("API_START_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	// Background purge of expired sessions
	janitor, err := auth.NewJanitor(sessions, cfg.SweepInterval, logger)
	if err != nil {
		return err
	}
	if metrics != nil {
		janitor.OnPurge(func(n int64) {
			metrics.SessionsPurgedTotal.Add(float64(n))
		})
	}
	go janitor.Run(ctx)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Server started")
	logger.Info("server ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigrate applies pending migrations before the server starts.
func runAutoMigrate(dsn string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	m, err := factory(dsn)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Debug("error closing migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("migrations up to date")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failed server takes the process down gracefully.
// It exits when an error arrives, the channel closes, or the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
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
		// Context cancelled, exit monitoring
	}
}
