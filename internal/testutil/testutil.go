package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	appdb "onboarding/internal/db"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

func Logger(tb testing.TB) *zap.Logger {
	tb.Helper()
	return zap.NewNop()
}

// DB returns a migrated pool for TEST_POSTGRES_DSN or skips the test.
func DB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()

	poolOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			poolErr = errMissingDSN
			return
		}

		ctx := context.Background()
		pool, poolErr = pgxpool.New(ctx, dsn)
		if poolErr != nil {
			return
		}
		poolErr = appdb.Migrate(ctx, pool, zap.NewNop())
	})

	if errors.Is(poolErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if poolErr != nil {
		tb.Fatalf("failed to init test db: %v", poolErr)
	}
	return pool
}

// Reset empties every table so integration tests start clean.
func Reset(tb testing.TB, p *pgxpool.Pool) {
	tb.Helper()
	_, err := p.Exec(context.Background(), `
		TRUNCATE task_progress, user_journeys, journey_tasks, journeys, users, outbox_events
		RESTART IDENTITY
	`)
	if err != nil {
		tb.Fatalf("reset db: %v", err)
	}
}
