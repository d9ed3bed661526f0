package journey_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	mqcontracts "onboarding/contracts/mq"
	"onboarding/internal/model"
	"onboarding/internal/service/journey"
	"onboarding/internal/testutil"
)

func newEngine(t *testing.T) (*journey.Engine, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewDemoStore()
	return journey.NewEngine(store, zap.NewNop()), store
}

func handle(t *testing.T, e *journey.Engine, userID int, eventType string) *journey.Outcome {
	t.Helper()
	out, err := e.HandleEvent(context.Background(), journey.Event{Type: eventType, UserID: userID, Source: "test"})
	if err != nil {
		t.Fatalf("HandleEvent(%d, %q): %v", userID, eventType, err)
	}
	return out
}

func TestHandleEventProgressesThroughJourney(t *testing.T) {
	e, _ := newEngine(t)

	steps := []struct {
		event      string
		percentage int
		message    string
	}{
		{"document_created", 33, "Onboarding opdateret: 1 af 3 trin gennemført."},
		{"document_submitted_for_approval", 67, "Onboarding opdateret: 2 af 3 trin gennemført."},
		{"document_approved", 100, journey.MsgCompleted},
	}
	for _, step := range steps {
		out := handle(t, e, 3, step.event)
		if out.Status != journey.StatusRecorded {
			t.Fatalf("%s: status = %s, want recorded", step.event, out.Status)
		}
		if out.Progress.Percentage != step.percentage {
			t.Fatalf("%s: percentage = %d, want %d", step.event, out.Progress.Percentage, step.percentage)
		}
		if out.Message != step.message {
			t.Fatalf("%s: message = %q, want %q", step.event, out.Message, step.message)
		}
	}

	view, err := e.JourneyForUser(context.Background(), 3)
	if err != nil {
		t.Fatalf("JourneyForUser: %v", err)
	}
	if !view.Progress.IsCompleted {
		t.Fatalf("expected completed journey, got %+v", view.Progress)
	}

	if err := e.ResetUser(context.Background(), 3); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	view, err = e.JourneyForUser(context.Background(), 3)
	if err != nil {
		t.Fatalf("JourneyForUser after reset: %v", err)
	}
	if view.Progress != (model.Progress{Total: 3}) {
		t.Fatalf("progress after reset = %+v", view.Progress)
	}
	for _, task := range view.Tasks {
		if task.Completed {
			t.Fatalf("task %d still completed after reset", task.ID)
		}
	}
}

func TestHandleEventIsIdempotent(t *testing.T) {
	e, store := newEngine(t)

	first := handle(t, e, 3, "document_created")
	second := handle(t, e, 3, "document_created")

	if first.Status != journey.StatusRecorded {
		t.Fatalf("first status = %s", first.Status)
	}
	if second.Status != journey.StatusAlreadyCompleted {
		t.Fatalf("second status = %s, want already_completed", second.Status)
	}
	if second.Progress != first.Progress {
		t.Fatalf("progress changed on duplicate: %+v vs %+v", second.Progress, first.Progress)
	}
	if n := len(store.ProgressRows()); n != 1 {
		t.Fatalf("progress rows = %d, want 1", n)
	}
	if n := len(store.Outbox()); n != 1 {
		t.Fatalf("outbox events = %d, want 1", n)
	}
}

func TestHandleEventIgnored(t *testing.T) {
	e, store := newEngine(t)

	out := handle(t, e, 2, "document_created")
	if out.Status != journey.StatusIgnoredNoJourney || out.Message != journey.MsgNoJourney {
		t.Fatalf("no journey: got %+v", out)
	}
	if out.Journey != nil || out.Tasks != nil {
		t.Fatalf("ignored outcome carries journey data: %+v", out)
	}

	out = handle(t, e, 3, "Document_Created")
	if out.Status != journey.StatusIgnoredNoTask || out.Message != journey.MsgNoTask {
		t.Fatalf("no task: got %+v", out)
	}

	if n := len(store.ProgressRows()); n != 0 {
		t.Fatalf("ignored events wrote %d rows", n)
	}
}

func TestHandleEventStoresMetadata(t *testing.T) {
	e, store := newEngine(t)

	meta := json.RawMessage(`{"documentId":42}`)
	if _, err := e.HandleEvent(context.Background(), journey.Event{Type: "document_created", UserID: 3, Metadata: meta}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	handle(t, e, 3, "document_approved")

	rows := store.ProgressRows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if string(rows[0].Metadata) != `{"documentId":42}` {
		t.Fatalf("metadata = %s", rows[0].Metadata)
	}
	if string(rows[1].Metadata) != `{}` {
		t.Fatalf("missing metadata stored as %s, want {}", rows[1].Metadata)
	}
}

func TestHandleEventUniqueViolationIsAlreadyCompleted(t *testing.T) {
	e, store := newEngine(t)
	store.InsertErr = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

	out := handle(t, e, 3, "document_created")
	if out.Status != journey.StatusAlreadyCompleted {
		t.Fatalf("status = %s, want already_completed", out.Status)
	}
	if len(store.Outbox()) != 0 {
		t.Fatal("duplicate wrote outbox events")
	}
}

func TestHandleEventStoreErrorRollsBack(t *testing.T) {
	e, store := newEngine(t)
	store.EnqueueErr = testutil.ErrBoom

	_, err := e.HandleEvent(context.Background(), journey.Event{Type: "document_created", UserID: 3})
	if !errors.Is(err, testutil.ErrBoom) {
		t.Fatalf("err = %v, want ErrBoom", err)
	}
	if n := len(store.ProgressRows()); n != 0 {
		t.Fatalf("rows after failed tx = %d, want 0", n)
	}
}

func TestHandleEventEnqueuesNotifications(t *testing.T) {
	e, store := newEngine(t)

	handle(t, e, 3, "document_created")
	handle(t, e, 3, "document_submitted_for_approval")
	handle(t, e, 3, "document_approved")

	events := store.Outbox()
	keys := make([]string, 0, len(events))
	for _, ev := range events {
		keys = append(keys, ev.RoutingKey)
	}
	want := []string{
		mqcontracts.RoutingKeyTaskCompleted,
		mqcontracts.RoutingKeyTaskCompleted,
		mqcontracts.RoutingKeyTaskCompleted,
		mqcontracts.RoutingKeyJourneyCompleted,
	}
	if len(keys) != len(want) {
		t.Fatalf("routing keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("routing keys = %v, want %v", keys, want)
		}
	}

	last, ok := events[2].Payload.(mqcontracts.JourneyTaskCompletedPayload)
	if !ok {
		t.Fatalf("payload type %T", events[2].Payload)
	}
	if last.Percentage != 100 || last.Completed != 3 || last.EventID == "" {
		t.Fatalf("task payload = %+v", last)
	}
	done, ok := events[3].Payload.(mqcontracts.JourneyCompletedPayload)
	if !ok {
		t.Fatalf("payload type %T", events[3].Payload)
	}
	if done.JourneyName != "Ny dokumentansvarlig" || done.UserID != 3 {
		t.Fatalf("completed payload = %+v", done)
	}
}

func TestResetUserWithoutJourney(t *testing.T) {
	e, _ := newEngine(t)

	if err := e.ResetUser(context.Background(), 2); !errors.Is(err, journey.ErrNoActiveJourney) {
		t.Fatalf("err = %v, want ErrNoActiveJourney", err)
	}
	if _, err := e.JourneyForUser(context.Background(), 2); !errors.Is(err, journey.ErrNoActiveJourney) {
		t.Fatalf("JourneyForUser err = %v", err)
	}
}

func TestResetUserOnlyTouchesActiveJourney(t *testing.T) {
	store := testutil.NewDemoStore()
	e := journey.NewEngine(store, zap.NewNop())
	ctx := context.Background()

	other, err := store.Create(ctx, "Anden", nil, []model.Task{{Title: "x", EventType: "document_created", SortOrder: 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.InsertCompletion(ctx, 3, other, 999, nil, testTime); err != nil {
		t.Fatalf("InsertCompletion: %v", err)
	}
	handle(t, e, 3, "document_created")

	if err := e.ResetUser(ctx, 3); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	rows := store.ProgressRows()
	if len(rows) != 1 || rows[0].JourneyID != other {
		t.Fatalf("rows after reset = %+v", rows)
	}
}

func TestActiveJourneyEarliestAssignmentWins(t *testing.T) {
	store := testutil.NewDemoStore()
	e := journey.NewEngine(store, zap.NewNop())
	ctx := context.Background()

	second, _ := store.Create(ctx, "Senere", nil, []model.Task{{Title: "y", EventType: "document_created", SortOrder: 1}})
	if _, err := store.Assign(ctx, 3, second); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	j, err := e.ResolveActiveJourney(ctx, 3)
	if err != nil {
		t.Fatalf("ResolveActiveJourney: %v", err)
	}
	if j.Name != "Ny dokumentansvarlig" {
		t.Fatalf("active journey = %q", j.Name)
	}
}
