package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"onboarding/internal/model"
	pkgotel "onboarding/pkg/otel"
)

type UserRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewUserRepository(db DBTX, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// ListNonAdmin returns regular users ordered by id.
func (r *UserRepository) ListNonAdmin(ctx context.Context) ([]model.UserSummary, error) {
	users := []model.UserSummary{}
	err := pkgotel.WithDBSpan(ctx, "select", "users", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, name
			FROM users
			WHERE is_admin = FALSE
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u model.UserSummary
			if err := rows.Scan(&u.ID, &u.Name); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// FindByName returns every user with the given display name, lowest id first.
// Names are not unique.
func (r *UserRepository) FindByName(ctx context.Context, name string) ([]model.User, error) {
	var users []model.User
	err := pkgotel.WithDBSpan(ctx, "select", "users", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, name, password, is_admin, created_at
			FROM users
			WHERE name = $1
			ORDER BY id ASC
		`, name)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u model.User
			if err := rows.Scan(&u.ID, &u.Name, &u.Password, &u.IsAdmin, &u.CreatedAt); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find user by name: %w", err)
	}
	return users, nil
}
