package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	pkgdb "onboarding/pkg/db"
	"onboarding/pkg/util"
)

const DemoJourneyID = 1

type seedUser struct {
	id       int
	name     string
	password string
	isAdmin  bool
}

var seedUsers = []seedUser{
	{1, "admin", "admin", true},
	{2, "Brian", "password123", false},
	{3, "Lotte fra Kvalitet", "password123", false},
	{4, "Birthe fra HR", "password123", false},
}

var seedTasks = []struct {
	id        int
	title     string
	eventType string
	sortOrder int
}{
	{1, "Opret første dokument", "document_created", 1},
	{2, "Send dokument til godkendelse", "document_submitted_for_approval", 2},
	{3, "Godkend et dokument", "document_approved", 3},
}

// Seed inserts the demo users, the demo journey and one assignment. Existing
// rows are left untouched.
func Seed(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	err := pkgdb.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, u := range seedUsers {
			hash, err := util.HashPassword(u.password)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, password, is_admin)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO NOTHING
			`, u.id, u.name, hash, u.isAdmin); err != nil {
				return fmt.Errorf("seed user %d: %w", u.id, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO journeys (id, name, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, DemoJourneyID, "Ny dokumentansvarlig", "Onboarding for ny dokumentansvarlig"); err != nil {
			return fmt.Errorf("seed journey: %w", err)
		}

		for _, t := range seedTasks {
			if _, err := tx.Exec(ctx, `
				INSERT INTO journey_tasks (id, journey_id, title, event_type, sort_order)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING
			`, t.id, DemoJourneyID, t.title, t.eventType, t.sortOrder); err != nil {
				return fmt.Errorf("seed task %d: %w", t.id, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_journeys (user_id, journey_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, 3, DemoJourneyID); err != nil {
			return fmt.Errorf("seed assignment: %w", err)
		}

		// explicit ids above leave the serial sequences behind
		for _, table := range []string{"users", "journeys", "journey_tasks"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`,
				table,
			)); err != nil {
				return fmt.Errorf("sync sequence %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Seed data ensured",
		zap.Int("users", len(seedUsers)),
		zap.Int("journey_id", DemoJourneyID),
	)
	return nil
}
