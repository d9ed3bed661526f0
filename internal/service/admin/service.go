package admin

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"onboarding/internal/model"
)

// ErrInvalidJourney is returned when a journey has no name or no usable task.
var ErrInvalidJourney = errors.New("journey needs a name and at least one task")

type Store interface {
	Create(ctx context.Context, name string, description *string, tasks []model.Task) (int, error)
	ListWithTasks(ctx context.Context) ([]model.JourneyWithTasks, error)
	Delete(ctx context.Context, journeyID int) error
	DeleteAll(ctx context.Context) error
	ListNonAdmin(ctx context.Context) ([]model.UserSummary, error)
	Assign(ctx context.Context, userID, journeyID int) (bool, error)
	Overview(ctx context.Context) ([]model.OverviewEntry, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateJourney validates and stores a journey. Tasks with a blank title or
// event type are skipped; the rest keep their 1-based input position as
// sort_order.
func (s *Service) CreateJourney(ctx context.Context, name, description string, inputs []model.TaskInput) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(inputs) == 0 {
		return 0, ErrInvalidJourney
	}

	tasks := make([]model.Task, 0, len(inputs))
	for i, in := range inputs {
		title := strings.TrimSpace(in.Title)
		eventType := strings.TrimSpace(in.EventType)
		if title == "" || eventType == "" {
			continue
		}
		tasks = append(tasks, model.Task{Title: title, EventType: eventType, SortOrder: i + 1})
	}
	if len(tasks) == 0 {
		return 0, ErrInvalidJourney
	}

	var desc *string
	if d := strings.TrimSpace(description); d != "" {
		desc = &d
	}

	if skipped := len(inputs) - len(tasks); skipped > 0 {
		s.logger.Info("Skipped malformed tasks", zap.String("journey", name), zap.Int("skipped", skipped))
	}
	return s.store.Create(ctx, name, desc, tasks)
}

func (s *Service) ListJourneys(ctx context.Context) ([]model.JourneyWithTasks, error) {
	return s.store.ListWithTasks(ctx)
}

func (s *Service) DeleteJourney(ctx context.Context, journeyID int) error {
	if err := s.store.Delete(ctx, journeyID); err != nil {
		return err
	}
	s.logger.Info("Journey deleted", zap.Int("journey_id", journeyID))
	return nil
}

// ResetAllJourneys deletes every journey, task, assignment and progress row.
func (s *Service) ResetAllJourneys(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.Warn("All journeys deleted")
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	return s.store.ListNonAdmin(ctx)
}

// AssignJourney is idempotent; assigning an existing pair is a no-op.
func (s *Service) AssignJourney(ctx context.Context, userID, journeyID int) error {
	inserted, err := s.store.Assign(ctx, userID, journeyID)
	if err != nil {
		return err
	}
	s.logger.Info("Journey assigned",
		zap.Int("user_id", userID),
		zap.Int("journey_id", journeyID),
		zap.Bool("new", inserted),
	)
	return nil
}

func (s *Service) Overview(ctx context.Context) ([]model.OverviewEntry, error) {
	return s.store.Overview(ctx)
}
