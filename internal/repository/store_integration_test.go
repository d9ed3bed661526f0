package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	appdb "onboarding/internal/db"
	"onboarding/internal/model"
	"onboarding/internal/repository"
	"onboarding/internal/service/journey"
	"onboarding/internal/testutil"
	"onboarding/pkg/outbox"
)

func newSeededStore(t *testing.T) (*repository.Store, *outbox.Repository) {
	t.Helper()
	pool := testutil.DB(t)
	testutil.Reset(t, pool)
	if err := appdb.Seed(context.Background(), pool, zap.NewNop()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	outboxRepo := outbox.NewRepository(pool)
	return repository.NewStore(pool, outboxRepo, zap.NewNop()), outboxRepo
}

// progressRows reads the completion rows directly, oldest first.
func progressRows(t *testing.T, pool *pgxpool.Pool, userID, journeyID int) []model.TaskProgress {
	t.Helper()
	rows, err := pool.Query(context.Background(), `
		SELECT id, user_id, journey_id, task_id, completed_at, metadata
		FROM task_progress
		WHERE user_id = $1 AND journey_id = $2
		ORDER BY completed_at ASC, id ASC
	`, userID, journeyID)
	if err != nil {
		t.Fatalf("query task_progress: %v", err)
	}
	defer rows.Close()

	var out []model.TaskProgress
	for rows.Next() {
		var p model.TaskProgress
		if err := rows.Scan(&p.ID, &p.UserID, &p.JourneyID, &p.TaskID, &p.CompletedAt, &p.Metadata); err != nil {
			t.Fatalf("scan task_progress: %v", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestSeedIsIdempotent(t *testing.T) {
	pool := testutil.DB(t)
	testutil.Reset(t, pool)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := appdb.Seed(ctx, pool, zap.NewNop()); err != nil {
			t.Fatalf("Seed #%d: %v", i, err)
		}
	}
	store := repository.NewStore(pool, nil, zap.NewNop())
	users, err := store.ListNonAdmin(ctx)
	if err != nil {
		t.Fatalf("ListNonAdmin: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("users = %+v", users)
	}
	journeys, _ := store.ListWithTasks(ctx)
	if len(journeys) != 1 || len(journeys[0].Tasks) != 3 {
		t.Fatalf("journeys = %+v", journeys)
	}
}

func TestEngineAgainstPostgres(t *testing.T) {
	store, outboxRepo := newSeededStore(t)
	engine := journey.NewEngine(journey.NewPGStore(store), zap.NewNop())
	ctx := context.Background()

	meta := json.RawMessage(`{"documentId":"abc"}`)
	out, err := engine.HandleEvent(ctx, journey.Event{Type: "document_created", UserID: 3, Metadata: meta})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.Status != journey.StatusRecorded || out.Progress.Percentage != 33 {
		t.Fatalf("outcome = %+v", out)
	}

	out, err = engine.HandleEvent(ctx, journey.Event{Type: "document_created", UserID: 3})
	if err != nil {
		t.Fatalf("duplicate HandleEvent: %v", err)
	}
	if out.Status != journey.StatusAlreadyCompleted {
		t.Fatalf("duplicate status = %s", out.Status)
	}

	rows := progressRows(t, testutil.DB(t), 3, appdb.DemoJourneyID)
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	var stored map[string]any
	if err := json.Unmarshal(rows[0].Metadata, &stored); err != nil || stored["documentId"] != "abc" {
		t.Fatalf("metadata = %s (%v)", rows[0].Metadata, err)
	}

	for _, ev := range []string{"document_submitted_for_approval", "document_approved"} {
		if _, err := engine.HandleEvent(ctx, journey.Event{Type: ev, UserID: 3}); err != nil {
			t.Fatalf("HandleEvent %s: %v", ev, err)
		}
	}

	pending, err := outboxRepo.GetPendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingEvents: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("pending outbox events = %d, want 4", len(pending))
	}

	if err := engine.ResetUser(ctx, 3); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	view, err := engine.JourneyForUser(ctx, 3)
	if err != nil {
		t.Fatalf("JourneyForUser: %v", err)
	}
	if view.Progress != (model.Progress{Total: 3}) {
		t.Fatalf("progress after reset = %+v", view.Progress)
	}
}

func TestInsertCompletionConflictDoesNotAbortTx(t *testing.T) {
	store, _ := newSeededStore(t)
	ctx := context.Background()
	at := time.Now()

	err := store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.InsertCompletion(ctx, 3, 1, 1, nil, at); err != nil {
			return err
		}
		inserted, err := tx.InsertCompletion(ctx, 3, 1, 1, nil, at)
		if err != nil {
			return err
		}
		if inserted {
			return errors.New("second insert reported new")
		}
		_, err = tx.TasksWithStatus(ctx, 3, 1)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestActiveForUserAndMatching(t *testing.T) {
	store, _ := newSeededStore(t)
	ctx := context.Background()

	if _, err := store.ActiveForUser(ctx, 2); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("user without journey err = %v", err)
	}
	j, err := store.ActiveForUser(ctx, 3)
	if err != nil || j.ID != appdb.DemoJourneyID {
		t.Fatalf("ActiveForUser = %+v, %v", j, err)
	}
	if _, err := store.TaskByEventType(ctx, j.ID, "Document_Created"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("case-insensitive match: %v", err)
	}
	task, err := store.TaskByEventType(ctx, j.ID, "document_approved")
	if err != nil || task.SortOrder != 3 {
		t.Fatalf("TaskByEventType = %+v, %v", task, err)
	}
}

func TestAdminOperations(t *testing.T) {
	store, _ := newSeededStore(t)
	ctx := context.Background()

	desc := "Kvalitet"
	id, err := store.Create(ctx, "Ny kvalitetsansvarlig", &desc, []model.Task{
		{Title: "A", EventType: "a", SortOrder: 1},
		{Title: "C", EventType: "c", SortOrder: 3},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	inserted, err := store.Assign(ctx, 2, id)
	if err != nil || !inserted {
		t.Fatalf("Assign = %v, %v", inserted, err)
	}
	inserted, err = store.Assign(ctx, 2, id)
	if err != nil || inserted {
		t.Fatalf("repeat Assign = %v, %v", inserted, err)
	}

	empty, err := store.Create(ctx, "Tom", nil, nil)
	if err != nil {
		t.Fatalf("Create empty: %v", err)
	}
	if _, err := store.Assign(ctx, 4, empty); err != nil {
		t.Fatalf("Assign empty: %v", err)
	}

	overview, err := store.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(overview) != 2 {
		t.Fatalf("overview = %+v, empty journeys are excluded", overview)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	journeys, err := store.ListWithTasks(ctx)
	if err != nil || len(journeys) != 0 {
		t.Fatalf("journeys after DeleteAll = %+v, %v", journeys, err)
	}
}
