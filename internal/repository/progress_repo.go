package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"onboarding/internal/model"
	pkgdb "onboarding/pkg/db"
	pkgotel "onboarding/pkg/otel"
)

type ProgressRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewProgressRepository(db DBTX, logger *zap.Logger) *ProgressRepository {
	return &ProgressRepository{db: db, logger: logger}
}

// InsertCompletion records a task completion. It returns false when the
// (user, journey, task) row already exists. The insert runs in its own
// savepoint so a constraint error leaves an enclosing transaction usable.
func (r *ProgressRepository) InsertCompletion(ctx context.Context, userID, journeyID, taskID int, metadata json.RawMessage, at time.Time) (bool, error) {
	if len(metadata) == 0 || string(metadata) == "null" {
		metadata = json.RawMessage(`{}`)
	}

	var inserted bool
	err := pkgdb.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return pkgotel.WithDBSpan(ctx, "insert", "task_progress", func(ctx context.Context) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO task_progress (user_id, journey_id, task_id, completed_at, metadata)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (user_id, journey_id, task_id) DO NOTHING
			`, userID, journeyID, taskID, at, metadata)
			if err != nil {
				return err
			}
			inserted = tag.RowsAffected() == 1
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("insert task progress: %w", err)
	}
	return inserted, nil
}

// DeleteForUserJourney clears userID's progress in journeyID.
func (r *ProgressRepository) DeleteForUserJourney(ctx context.Context, userID, journeyID int) (int64, error) {
	var n int64
	err := pkgotel.WithDBSpan(ctx, "delete", "task_progress", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			DELETE FROM task_progress
			WHERE user_id = $1 AND journey_id = $2
		`, userID, journeyID)
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset progress: %w", err)
	}
	return n, nil
}

// Overview returns one row per assigned (user, journey) pair. Tasks are
// inner-joined, so journeys without tasks do not appear.
func (r *ProgressRepository) Overview(ctx context.Context) ([]model.OverviewEntry, error) {
	entries := []model.OverviewEntry{}
	err := pkgotel.WithDBSpan(ctx, "select", "user_journeys", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT
				uj.user_id,
				u.name AS user_name,
				uj.journey_id,
				j.name AS journey_name,
				COUNT(DISTINCT jt.id) AS total_tasks,
				COUNT(DISTINCT tp.id) AS completed_tasks
			FROM user_journeys uj
			JOIN users u ON u.id = uj.user_id
			JOIN journeys j ON j.id = uj.journey_id
			JOIN journey_tasks jt ON jt.journey_id = j.id
			LEFT JOIN task_progress tp
			  ON tp.user_id = uj.user_id
			 AND tp.journey_id = uj.journey_id
			 AND tp.task_id = jt.id
			GROUP BY uj.user_id, u.name, uj.journey_id, j.name
			ORDER BY u.name ASC, j.name ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e model.OverviewEntry
			if err := rows.Scan(
				&e.UserID, &e.UserName, &e.JourneyID, &e.JourneyName,
				&e.TotalTasks, &e.CompletedTasks,
			); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	return entries, nil
}
