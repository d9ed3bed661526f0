package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"onboarding/internal/model"
	pkgdb "onboarding/pkg/db"
	pkgotel "onboarding/pkg/otel"
)

type JourneyRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewJourneyRepository(db DBTX, logger *zap.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

// ActiveForUser returns the user's active journey: the earliest assignment,
// then the lowest journey id.
func (r *JourneyRepository) ActiveForUser(ctx context.Context, userID int) (*model.Journey, error) {
	var j model.Journey
	err := pkgotel.WithDBSpan(ctx, "select", "user_journeys", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			SELECT j.id, j.name, j.description, j.created_at
			FROM journeys j
			JOIN user_journeys uj ON uj.journey_id = j.id
			WHERE uj.user_id = $1
			ORDER BY uj.assigned_at ASC, j.id ASC
			LIMIT 1
		`, userID).Scan(&j.ID, &j.Name, &j.Description, &j.CreatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active journey for user %d: %w", userID, err)
	}
	return &j, nil
}

// TaskByEventType finds the task in journeyID bound to eventType. Matching is
// exact and case-sensitive; duplicates resolve to the lowest sort_order.
func (r *JourneyRepository) TaskByEventType(ctx context.Context, journeyID int, eventType string) (*model.Task, error) {
	var t model.Task
	err := pkgotel.WithDBSpan(ctx, "select", "journey_tasks", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			SELECT id, journey_id, title, event_type, sort_order
			FROM journey_tasks
			WHERE journey_id = $1 AND event_type = $2
			ORDER BY sort_order ASC, id ASC
			LIMIT 1
		`, journeyID, eventType).Scan(&t.ID, &t.JourneyID, &t.Title, &t.EventType, &t.SortOrder)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task for event %q: %w", eventType, err)
	}
	return &t, nil
}

// TasksWithStatus lists the journey's tasks in display order, each flagged
// with whether userID has completed it.
func (r *JourneyRepository) TasksWithStatus(ctx context.Context, userID, journeyID int) ([]model.TaskWithStatus, error) {
	tasks := []model.TaskWithStatus{}
	err := pkgotel.WithDBSpan(ctx, "select", "journey_tasks", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT t.id, t.title, t.event_type, t.sort_order, tp.id IS NOT NULL AS completed
			FROM journey_tasks t
			LEFT JOIN task_progress tp
			  ON tp.task_id = t.id
			 AND tp.user_id = $1
			 AND tp.journey_id = $2
			WHERE t.journey_id = $2
			ORDER BY t.sort_order ASC, t.id ASC
		`, userID, journeyID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t model.TaskWithStatus
			if err := rows.Scan(&t.ID, &t.Title, &t.EventType, &t.SortOrder, &t.Completed); err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("tasks with status: %w", err)
	}
	return tasks, nil
}

// Create inserts a journey and its tasks in one transaction. Tasks keep the
// SortOrder the caller assigned.
func (r *JourneyRepository) Create(ctx context.Context, name string, description *string, tasks []model.Task) (int, error) {
	var journeyID int
	err := pkgdb.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return pkgotel.WithDBSpan(ctx, "insert", "journeys", func(ctx context.Context) error {
			if err := tx.QueryRow(ctx, `
				INSERT INTO journeys (name, description)
				VALUES ($1, $2)
				RETURNING id
			`, name, description).Scan(&journeyID); err != nil {
				return err
			}

			batch := &pgx.Batch{}
			for _, t := range tasks {
				batch.Queue(`
					INSERT INTO journey_tasks (journey_id, title, event_type, sort_order)
					VALUES ($1, $2, $3, $4)
				`, journeyID, t.Title, t.EventType, t.SortOrder)
			}
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if err != nil {
		return 0, fmt.Errorf("create journey: %w", err)
	}

	r.logger.Info("Journey created",
		zap.Int("journey_id", journeyID),
		zap.String("name", name),
		zap.Int("tasks", len(tasks)),
	)
	return journeyID, nil
}

// ListWithTasks returns all journeys ordered by id with their tasks nested.
func (r *JourneyRepository) ListWithTasks(ctx context.Context) ([]model.JourneyWithTasks, error) {
	journeys := []model.JourneyWithTasks{}
	err := pkgotel.WithDBSpan(ctx, "select", "journeys", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `SELECT id, name, description FROM journeys ORDER BY id ASC`)
		if err != nil {
			return err
		}
		index := map[int]int{}
		for rows.Next() {
			j := model.JourneyWithTasks{Tasks: []model.Task{}}
			if err := rows.Scan(&j.ID, &j.Name, &j.Description); err != nil {
				rows.Close()
				return err
			}
			index[j.ID] = len(journeys)
			journeys = append(journeys, j)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = r.db.Query(ctx, `
			SELECT id, journey_id, title, event_type, sort_order
			FROM journey_tasks
			ORDER BY journey_id ASC, sort_order ASC, id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t model.Task
			if err := rows.Scan(&t.ID, &t.JourneyID, &t.Title, &t.EventType, &t.SortOrder); err != nil {
				return err
			}
			if i, ok := index[t.JourneyID]; ok {
				journeys[i].Tasks = append(journeys[i].Tasks, t)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	return journeys, nil
}

// Delete removes the journey with its progress, tasks and assignments, in
// that order. A missing id deletes nothing and is not an error.
func (r *JourneyRepository) Delete(ctx context.Context, journeyID int) error {
	return r.deleteWithRelations(ctx, "WHERE journey_id = $1", "WHERE id = $1", journeyID)
}

// DeleteAll removes every journey and everything that references one.
func (r *JourneyRepository) DeleteAll(ctx context.Context) error {
	return r.deleteWithRelations(ctx, "", "")
}

func (r *JourneyRepository) deleteWithRelations(ctx context.Context, relWhere, journeyWhere string, args ...any) error {
	stmts := []struct{ table, sql string }{
		{"task_progress", "DELETE FROM task_progress " + relWhere},
		{"journey_tasks", "DELETE FROM journey_tasks " + relWhere},
		{"user_journeys", "DELETE FROM user_journeys " + relWhere},
		{"journeys", "DELETE FROM journeys " + journeyWhere},
	}

	err := pkgdb.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, s := range stmts {
			err := pkgotel.WithDBSpan(ctx, "delete", s.table, func(ctx context.Context) error {
				tag, err := tx.Exec(ctx, s.sql, args...)
				if err != nil {
					return err
				}
				r.logger.Debug("Deleted journey relations",
					zap.String("table", s.table),
					zap.Int64("rows", tag.RowsAffected()),
				)
				return nil
			})
			if err != nil {
				return fmt.Errorf("delete from %s: %w", s.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete journeys: %w", err)
	}
	return nil
}

// Assign links userID to journeyID. Returns false when the pair already existed.
func (r *JourneyRepository) Assign(ctx context.Context, userID, journeyID int) (bool, error) {
	var inserted bool
	err := pkgotel.WithDBSpan(ctx, "insert", "user_journeys", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			INSERT INTO user_journeys (user_id, journey_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, journey_id) DO NOTHING
		`, userID, journeyID)
		inserted = tag.RowsAffected() == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("assign journey %d to user %d: %w", journeyID, userID, err)
	}
	return inserted, nil
}
