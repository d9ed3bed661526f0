package journey

import (
	"context"
	"encoding/json"
	"time"

	"onboarding/internal/model"
	"onboarding/internal/repository"
)

// Store is the persistence the engine runs against. Lookups return
// repository.ErrNotFound when nothing matches.
type Store interface {
	ActiveForUser(ctx context.Context, userID int) (*model.Journey, error)
	TaskByEventType(ctx context.Context, journeyID int, eventType string) (*model.Task, error)
	TasksWithStatus(ctx context.Context, userID, journeyID int) ([]model.TaskWithStatus, error)
	InsertCompletion(ctx context.Context, userID, journeyID, taskID int, metadata json.RawMessage, at time.Time) (bool, error)
	DeleteForUserJourney(ctx context.Context, userID, journeyID int) (int64, error)
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
	InTx(ctx context.Context, fn func(tx Store) error) error
}

type pgStore struct {
	*repository.Store
}

// NewPGStore adapts the postgres repositories to Store.
func NewPGStore(s *repository.Store) Store {
	return pgStore{Store: s}
}

func (s pgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.InTx(ctx, func(tx *repository.Store) error {
		return fn(pgStore{Store: tx})
	})
}
