package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var shared struct {
	once sync.Once
	pool *pgxpool.Pool
	err  error
}

// TestPool returns a pool on TEST_DATABASE_URL with the schema applied,
// shared by every test in the binary. Skips the test if the variable is
// not set.
func TestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	shared.once.Do(func() {
		ctx := context.Background()
		shared.pool, shared.err = Connect(ctx, dbURL)
		if shared.err == nil {
			shared.err = RunMigrations(ctx, shared.pool)
		}
	})
	if shared.err != nil {
		t.Fatalf("failed to set up test database: %v", shared.err)
	}
	return shared.pool
}

// TestTx returns a transaction on the shared pool that is rolled back when
// the test ends. Repositories built on it see an empty mess, and nested
// InTx calls become savepoints.
func TestTx(t *testing.T) pgx.Tx {
	t.Helper()

	tx, err := TestPool(t).Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}
