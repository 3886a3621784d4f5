// Package testutil provides shared test infrastructure: a disposable
// pgvector container and deterministic embedding fixtures.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/libris-ai/libris/db"
	"github.com/libris-ai/libris/internal/log"
	"github.com/libris-ai/libris/internal/store"
)

// SetupPostgres starts a pgvector container, runs the migrations, and
// returns a pool with vector types registered. The container and pool
// are cleaned up when the test finishes.
//
// Set LIBRIS_SKIP_DOCKER_TESTS=1 to skip container-backed tests, for
// environments without a Docker daemon.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("LIBRIS_SKIP_DOCKER_TESTS") != "" {
		t.Skip("LIBRIS_SKIP_DOCKER_TESTS set, skipping container test")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("libris_test"),
		postgres.WithUsername("libris_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting pgvector container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr, log.NewNop()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := store.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
