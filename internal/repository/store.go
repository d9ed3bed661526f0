package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	pkgdb "onboarding/pkg/db"
	"onboarding/pkg/outbox"
)

// Store bundles the repositories behind one handle. The journey engine and
// the admin service both run against it.
type Store struct {
	*UserRepository
	*JourneyRepository
	*ProgressRepository

	db     DBTX
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewStore(db DBTX, outboxRepo *outbox.Repository, logger *zap.Logger) *Store {
	return &Store{
		UserRepository:     NewUserRepository(db, logger),
		JourneyRepository:  NewJourneyRepository(db, logger),
		ProgressRepository: NewProgressRepository(db, logger),
		db:                 db,
		outbox:             outboxRepo,
		logger:             logger,
	}
}

// InTx runs fn against a copy of the store bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return pkgdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx, s.outbox, s.logger))
	})
}

// EnqueueEvent writes an outbox row. Inside InTx it joins that transaction.
func (s *Store) EnqueueEvent(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	if s.outbox == nil {
		return nil
	}
	if tx, ok := s.db.(pgx.Tx); ok {
		return outbox.InsertEventInTx(ctx, tx, s.outbox, aggregateType, &aggregateID, routingKey, payload)
	}
	return pkgdb.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return outbox.InsertEventInTx(ctx, tx, s.outbox, aggregateType, &aggregateID, routingKey, payload)
	})
}
