package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/payward/payward/internal/models"
)

// UserRepository defines the user storage operations consumed by the
// account-facing services
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name, role string) (*models.User, error)
	Delete(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
	SetOTPSecret(ctx context.Context, id, secret string, expiresAt time.Time) error
	SetResetSecret(ctx context.Context, id, secret string, expiresAt time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// UserService handles user profile business logic
type UserService struct {
	repo   UserRepository
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves a page of users
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// UpdateProfile changes the user's display name. Role changes go through
// ChangeRole so the admin-only path stays separate.
func (s *UserService) UpdateProfile(ctx context.Context, id, name string) (*models.User, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if name == "" {
		name = existing.Name
	}

	updated, err := s.repo.UpdateProfile(ctx, id, name, existing.Role)
	if err != nil {
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	return updated, nil
}

// ChangeRole assigns a new role. Callers must have verified the actor is an
// administrator before reaching this.
func (s *UserService) ChangeRole(ctx context.Context, id, role string) (*models.User, error) {
	switch role {
	case models.RoleUser, models.RoleDeveloper, models.RoleAdmin:
	default:
		return nil, models.ErrBadRequest
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	updated, err := s.repo.UpdateProfile(ctx, id, existing.Name, role)
	if err != nil {
		s.logger.Error("failed to change role", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("role changed", slog.String("user_id", id), slog.String("role", role))
	return updated, nil
}

// DeleteUser removes the account
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}
