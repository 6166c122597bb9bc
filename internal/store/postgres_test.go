package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const pgvectorImage = "pgvector/pgvector:pg16"

var (
	sharedPool     *pgxpool.Pool
	sharedPoolOnce sync.Once
	sharedPoolErr  error
)

// getTestPool returns a migrated pool backed by a shared container. The
// container is created once and reused across all tests in the run.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPoolOnce.Do(func() {
		sharedPool, sharedPoolErr = setupTestPool()
	})
	if sharedPoolErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedPoolErr)
	}
	return sharedPool
}

func setupTestPool() (*pgxpool.Pool, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "cuecode",
			"POSTGRES_USER":     "cuecode",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	pool, err := NewPool(ctx, &PoolConfig{
		URL: fmt.Sprintf("postgres://cuecode:test_password@%s:%s/cuecode?sslmode=disable", host, port.Port()),
	})
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(pool, zap.NewNop()); err != nil {
		return nil, err
	}
	return pool, nil
}

func TestPostgresStore(t *testing.T) {
	pool := getTestPool(t)
	testStoreContract(t, NewPostgresStore(pool, zap.NewNop()))
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	pool := getTestPool(t)
	if err := RunMigrations(pool, zap.NewNop()); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
