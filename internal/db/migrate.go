package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"onboarding/pkg/outbox"
)

// Foreign keys carry no ON DELETE CASCADE; journey deletion removes
// dependents explicitly in the repository.
var migrations = []struct {
	name string
	sql  string
}{
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id         SERIAL PRIMARY KEY,
	name       TEXT        NOT NULL,
	password   TEXT        NOT NULL,
	is_admin   BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_name ON users (name);`},

	{"journeys", `
CREATE TABLE IF NOT EXISTS journeys (
	id          SERIAL PRIMARY KEY,
	name        TEXT        NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`},

	{"journey_tasks", `
CREATE TABLE IF NOT EXISTS journey_tasks (
	id         SERIAL PRIMARY KEY,
	journey_id INT  NOT NULL REFERENCES journeys(id),
	title      TEXT NOT NULL,
	event_type TEXT NOT NULL,
	sort_order INT  NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_journey_tasks_event ON journey_tasks (journey_id, event_type);`},

	{"user_journeys", `
CREATE TABLE IF NOT EXISTS user_journeys (
	user_id     INT         NOT NULL REFERENCES users(id),
	journey_id  INT         NOT NULL REFERENCES journeys(id),
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, journey_id)
);`},

	{"task_progress", `
CREATE TABLE IF NOT EXISTS task_progress (
	id           SERIAL PRIMARY KEY,
	user_id      INT         NOT NULL REFERENCES users(id),
	journey_id   INT         NOT NULL REFERENCES journeys(id),
	task_id      INT         NOT NULL REFERENCES journey_tasks(id),
	completed_at TIMESTAMPTZ NOT NULL,
	metadata     JSONB       NOT NULL DEFAULT '{}',
	UNIQUE (user_id, journey_id, task_id)
);`},

	{"outbox_events", outbox.Schema},
}

// Migrate creates the schema. Every statement is idempotent so it runs on each start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		logger.Debug("Migration applied", zap.String("table", m.name))
	}
	logger.Info("Database schema ready", zap.Int("tables", len(migrations)))
	return nil
}
