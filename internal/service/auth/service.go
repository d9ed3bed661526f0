package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"onboarding/internal/model"
	"onboarding/pkg/rbac"
	"onboarding/pkg/util"
)

var (
	ErrMissingCredentials = errors.New("name and password are required")
	ErrInvalidCredentials = errors.New("invalid name or password")
	ErrForbidden          = errors.New("forbidden")
)

type UserStore interface {
	FindByName(ctx context.Context, name string) ([]model.User, error)
}

// Session is the result of a successful login.
type Session struct {
	User  model.User
	Role  string
	Token string
}

type Service struct {
	users  UserStore
	secret string
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(users UserStore, secret string, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{users: users, secret: secret, ttl: ttl, logger: logger}
}

// Login checks name and password. Stored passwords may be bcrypt hashes or
// legacy plaintext.
func (s *Service) Login(ctx context.Context, name, password string) (*Session, error) {
	if name == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	candidates, err := s.users.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	for _, u := range candidates {
		if !util.CheckPassword(password, u.Password) {
			continue
		}
		token, err := util.GenerateJWT(u.ID, u.IsAdmin, s.secret, s.ttl)
		if err != nil {
			return nil, err
		}
		s.logger.Info("User logged in", zap.Int("user_id", u.ID), zap.Bool("is_admin", u.IsAdmin))
		return &Session{User: u, Role: rbac.RoleOf(u.IsAdmin), Token: token}, nil
	}

	s.logger.Info("Login rejected", zap.String("name", name))
	return nil, ErrInvalidCredentials
}

// Authorize parses a session token and checks that it grants permission.
func (s *Service) Authorize(token, permission string) (*util.SessionClaims, error) {
	claims, err := util.ParseJWT(token, s.secret)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(rbac.RoleOf(claims.IsAdmin), permission) {
		return claims, ErrForbidden
	}
	return claims, nil
}
