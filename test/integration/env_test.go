// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tunevault/tunevault/internal/auth"
	authpg "github.com/tunevault/tunevault/internal/auth/postgres"
	"github.com/tunevault/tunevault/internal/storage"
	"github.com/tunevault/tunevault/internal/store"
	"github.com/tunevault/tunevault/internal/web"
)

// testEnv holds the resources shared by the integration specs: a PostgreSQL
// container, the service wired over it, and an HTTP server bound to an
// ephemeral port.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	dataDir   string
	server    *web.Server
	baseURL   string
}

// setupTestEnv starts PostgreSQL, runs migrations, and boots the API server.
func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	env := &testEnv{
		ctx:    ctx,
		cancel: cancel,
	}

	dataDir, err := os.MkdirTemp("", "tunevault-test-*")
	if err != nil {
		cancel()
		return nil, err
	}
	env.dataDir = dataDir

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tunevault_test"),
		postgres.WithUsername("tunevault"),
		postgres.WithPassword("tunevault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, env.teardownWith(err)
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, env.teardownWith(err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return nil, env.teardownWith(err)
	}
	_ = migrator.Close()

	env.pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, env.teardownWith(err)
	}

	provisioner, err := storage.NewDirProvisioner(dataDir)
	if err != nil {
		return nil, env.teardownWith(err)
	}

	logger := slog.New(slog.DiscardHandler)
	svc, err := auth.NewService(
		authpg.NewUserRepository(env.pool),
		authpg.NewSessionRepository(env.pool),
		auth.NewArgon2idHasher(),
		auth.WithProvisioner(provisioner),
		auth.WithSessionTTL(time.Hour),
		auth.WithLogger(logger),
	)
	if err != nil {
		return nil, env.teardownWith(err)
	}

	handler, err := web.NewHandler(svc, logger, nil)
	if err != nil {
		return nil, env.teardownWith(err)
	}
	env.server, err = web.NewServer("127.0.0.1:0", handler, logger, nil)
	if err != nil {
		return nil, env.teardownWith(err)
	}
	if _, err := env.server.Start(); err != nil {
		return nil, env.teardownWith(err)
	}
	env.baseURL = "http://" + env.server.Addr()

	return env, nil
}

// teardownWith cleans up partially constructed resources and passes the
// original error through.
func (e *testEnv) teardownWith(err error) error {
	e.teardown()
	return err
}

func (e *testEnv) teardown() {
	if e.server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = e.server.Stop(stopCtx)
		stopCancel()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
	e.cancel()
}

// newClient returns an HTTP client with its own cookie jar, i.e. its own
// session state.
func (e *testEnv) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(fmt.Sprintf("cookiejar: %v", err))
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
	}
}
