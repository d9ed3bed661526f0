package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "onboarding/contracts/mq"
	"onboarding/internal/model"
	"onboarding/internal/repository"
	"onboarding/pkg/logger"
	"onboarding/pkg/metrics"
	"onboarding/pkg/trace"
	"onboarding/pkg/util"
)

var (
	ErrNoActiveJourney = errors.New("no active journey")
	ErrNoMatchingTask  = errors.New("no matching task")
)

type Status string

const (
	StatusIgnoredNoJourney Status = "ignored_no_journey"
	StatusIgnoredNoTask    Status = "ignored_no_task"
	StatusRecorded         Status = "recorded"
	StatusAlreadyCompleted Status = "already_completed"
)

const (
	MsgNoJourney = "Ingen aktiv onboarding. Event ignoreret."
	MsgNoTask    = "Event ikke del af onboarding. Ignoreret."
	MsgCompleted = "Onboarding gennemført – du har nu afsluttet alle trin."
)

const aggregateJourney = "journey"

// Event is an application event addressed to one user.
type Event struct {
	Type     string
	UserID   int
	Metadata json.RawMessage
	// Source labels metrics, e.g. "http" or "mq".
	Source string
	// At is the completion time; zero means now.
	At time.Time
}

// Outcome is the result of HandleEvent. Journey, Tasks and Progress are only
// set when a journey and task matched.
type Outcome struct {
	Status   Status
	Message  string
	Journey  *model.Journey
	Tasks    []model.TaskWithStatus
	Progress model.Progress
}

// View is a user's active journey with annotated tasks and progress.
type View struct {
	Journey  *model.Journey
	Tasks    []model.TaskWithStatus
	Progress model.Progress
}

type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// ResolveActiveJourney returns the user's active journey or ErrNoActiveJourney.
func (e *Engine) ResolveActiveJourney(ctx context.Context, userID int) (*model.Journey, error) {
	return resolveActiveJourney(ctx, e.store, userID)
}

func resolveActiveJourney(ctx context.Context, store Store, userID int) (*model.Journey, error) {
	j, err := store.ActiveForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveJourney
	}
	return j, err
}

// MatchTask returns the task in journeyID bound to eventType or ErrNoMatchingTask.
func (e *Engine) MatchTask(ctx context.Context, journeyID int, eventType string) (*model.Task, error) {
	t, err := e.store.TaskByEventType(ctx, journeyID, eventType)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoMatchingTask
	}
	return t, err
}

// RecordCompletion stores a completion and reports whether it was new. A
// concurrent duplicate that trips the unique constraint counts as not new.
func (e *Engine) RecordCompletion(ctx context.Context, userID, journeyID, taskID int, metadata json.RawMessage, at time.Time) (bool, error) {
	return recordCompletion(ctx, e.store, userID, journeyID, taskID, metadata, at)
}

func recordCompletion(ctx context.Context, store Store, userID, journeyID, taskID int, metadata json.RawMessage, at time.Time) (bool, error) {
	inserted, err := store.InsertCompletion(ctx, userID, journeyID, taskID, metadata, at)
	if err != nil {
		if util.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return inserted, nil
}

// JourneyForUser returns the active journey with its tasks and progress.
func (e *Engine) JourneyForUser(ctx context.Context, userID int) (*View, error) {
	j, err := e.ResolveActiveJourney(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.store.TasksWithStatus(ctx, userID, j.ID)
	if err != nil {
		return nil, err
	}
	return &View{Journey: j, Tasks: tasks, Progress: ComputeProgress(tasks)}, nil
}

// HandleEvent matches evt against the user's active journey and records the
// task it completes. Missing journeys and unmatched events are outcomes, not
// errors.
func (e *Engine) HandleEvent(ctx context.Context, evt Event) (*Outcome, error) {
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("event_type", evt.Type),
		zap.Int("user_id", evt.UserID),
		zap.String("source", evt.Source),
	)

	out, err := e.handleEvent(ctx, evt)
	if err != nil {
		metrics.IncrementJourneyEvent(evt.Source, "error")
		log.Error("Failed to handle event", zap.Error(err))
		return nil, err
	}

	metrics.IncrementJourneyEvent(evt.Source, string(out.Status))
	fields := []zap.Field{zap.String("outcome", string(out.Status))}
	if out.Journey != nil {
		fields = append(fields,
			zap.Int("journey_id", out.Journey.ID),
			zap.Int("completed", out.Progress.Completed),
			zap.Int("total", out.Progress.Total),
		)
	}
	log.Info("Event handled", fields...)
	return out, nil
}

func (e *Engine) handleEvent(ctx context.Context, evt Event) (*Outcome, error) {
	j, err := e.ResolveActiveJourney(ctx, evt.UserID)
	if errors.Is(err, ErrNoActiveJourney) {
		return &Outcome{Status: StatusIgnoredNoJourney, Message: MsgNoJourney}, nil
	}
	if err != nil {
		return nil, err
	}

	task, err := e.MatchTask(ctx, j.ID, evt.Type)
	if errors.Is(err, ErrNoMatchingTask) {
		return &Outcome{Status: StatusIgnoredNoTask, Message: MsgNoTask}, nil
	}
	if err != nil {
		return nil, err
	}

	at := evt.At
	if at.IsZero() {
		at = e.now()
	}

	var (
		inserted bool
		tasks    []model.TaskWithStatus
	)
	err = e.store.InTx(ctx, func(tx Store) error {
		var err error
		inserted, err = recordCompletion(ctx, tx, evt.UserID, j.ID, task.ID, evt.Metadata, at)
		if err != nil || !inserted {
			return err
		}

		tasks, err = tx.TasksWithStatus(ctx, evt.UserID, j.ID)
		if err != nil {
			return err
		}
		return e.enqueueNotifications(ctx, tx, evt, j, task, ComputeProgress(tasks), at)
	})
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	if !inserted {
		tasks, err = e.store.TasksWithStatus(ctx, evt.UserID, j.ID)
		if err != nil {
			return nil, err
		}
	}

	progress := ComputeProgress(tasks)
	status := StatusRecorded
	if !inserted {
		status = StatusAlreadyCompleted
	}
	if inserted && progress.IsCompleted {
		metrics.IncrementJourneyCompleted()
	}

	return &Outcome{
		Status:   status,
		Message:  progressMessage(progress),
		Journey:  j,
		Tasks:    tasks,
		Progress: progress,
	}, nil
}

func (e *Engine) enqueueNotifications(ctx context.Context, tx Store, evt Event, j *model.Journey, task *model.Task, progress model.Progress, at time.Time) error {
	traceID := trace.FromContext(ctx)

	err := tx.EnqueueEvent(ctx, aggregateJourney, int64(j.ID), mqcontracts.RoutingKeyTaskCompleted,
		mqcontracts.JourneyTaskCompletedPayload{
			EventID:     uuid.NewString(),
			TraceID:     traceID,
			UserID:      evt.UserID,
			JourneyID:   j.ID,
			TaskID:      task.ID,
			EventType:   evt.Type,
			Completed:   progress.Completed,
			Total:       progress.Total,
			Percentage:  progress.Percentage,
			CompletedAt: at,
		})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", mqcontracts.RoutingKeyTaskCompleted, err)
	}

	if !progress.IsCompleted {
		return nil
	}
	err = tx.EnqueueEvent(ctx, aggregateJourney, int64(j.ID), mqcontracts.RoutingKeyJourneyCompleted,
		mqcontracts.JourneyCompletedPayload{
			EventID:     uuid.NewString(),
			TraceID:     traceID,
			UserID:      evt.UserID,
			JourneyID:   j.ID,
			JourneyName: j.Name,
			CompletedAt: at,
		})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", mqcontracts.RoutingKeyJourneyCompleted, err)
	}
	return nil
}

// ResetUser deletes the user's progress on their active journey.
func (e *Engine) ResetUser(ctx context.Context, userID int) error {
	j, err := e.ResolveActiveJourney(ctx, userID)
	if err != nil {
		return err
	}
	n, err := e.store.DeleteForUserJourney(ctx, userID, j.ID)
	if err != nil {
		return err
	}
	logger.WithTrace(ctx, e.logger).Info("Journey progress reset",
		zap.Int("user_id", userID),
		zap.Int("journey_id", j.ID),
		zap.Int64("rows", n),
	)
	return nil
}

func progressMessage(p model.Progress) string {
	if p.IsCompleted {
		return MsgCompleted
	}
	return fmt.Sprintf("Onboarding opdateret: %d af %d trin gennemført.", p.Completed, p.Total)
}
