package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/payward/payward/internal/models"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// AdminUserRepository is the user storage surface the admin area needs.
type AdminUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Stats(ctx context.Context) (*models.UserStats, error)
	ResetSecurityState(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AdminAttemptRepository exposes the throttle counters to the admin area.
type AdminAttemptRepository interface {
	FindByEmail(ctx context.Context, email string) ([]*models.LoginAttempt, error)
	DeleteByEmail(ctx context.Context, email string) error
	CountActive(ctx context.Context) (total, blocked int64, err error)
}

// AdminLedgerRepository exposes aggregate ledger activity.
type AdminLedgerRepository interface {
	VolumeSince(ctx context.Context, since time.Time) (count, creditCents int64, err error)
}

// DashboardStatsResponse is the admin dashboard summary
type DashboardStatsResponse struct {
	Users           *models.UserStats `json:"users"`
	OpenAttemptRows int64             `json:"open_attempt_rows"`
	BlockedTuples   int64             `json:"blocked_tuples"`
	Transactions24h int64             `json:"transactions_24h"`
	CreditVolume24h int64             `json:"credit_volume_cents_24h"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// AdminService backs the administrator surface: dashboard aggregates and
// manual intervention on throttled accounts.
type AdminService struct {
	users       AdminUserRepository
	attempts    AdminAttemptRepository
	ledger      AdminLedgerRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAdminService(users AdminUserRepository, attempts AdminAttemptRepository, ledger AdminLedgerRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		users:       users,
		attempts:    attempts,
		ledger:      ledger,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GetDashboardStats aggregates account, throttle, and ledger counts.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	userStats, err := s.users.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to aggregate user stats", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	attemptRows, blocked, err := s.attempts.CountActive(ctx)
	if err != nil {
		s.logger.Error("failed to count attempt rows", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	txCount, creditVolume, err := s.ledger.VolumeSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Error("failed to aggregate ledger volume", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &DashboardStatsResponse{
		Users:           userStats,
		OpenAttemptRows: attemptRows,
		BlockedTuples:   blocked,
		Transactions24h: txCount,
		CreditVolume24h: creditVolume,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// ListUsers pages through all accounts.
func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// LoginAttempts returns the open throttle counters for an email, letting an
// operator see why an account keeps getting rejected.
func (s *AdminService) LoginAttempts(ctx context.Context, email string) ([]*models.LoginAttempt, error) {
	attempts, err := s.attempts.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to load login attempts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return attempts, nil
}

// UnlockAccount manually clears both throttle tiers for a user: the account
// lock and every attempt counter naming the account's email.
func (s *AdminService) UnlockAccount(ctx context.Context, actorID, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.ResetSecurityState(ctx, userID); err != nil {
		s.logger.Error("failed to reset security state", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.attempts.DeleteByEmail(ctx, user.Email); err != nil {
		s.logger.Error("failed to delete attempt rows", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("account unlocked by admin",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID))
	s.auditLogger.LogAccountAction("account_unlocked", userID, "", map[string]string{"actor": actorID})
	return nil
}

// DeleteUser removes an account and every attempt counter naming its email,
// so a later re-registration starts with a clean throttle slate.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.attempts.DeleteByEmail(ctx, user.Email); err != nil {
		s.logger.Error("failed to delete attempt rows", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user deleted by admin",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID))
	s.auditLogger.LogAccountAction("user_deleted", userID, "", map[string]string{"actor": actorID})
	return nil
}
