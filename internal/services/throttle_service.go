package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/payward/payward/internal/models"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// LoginAttemptRepository defines the failure-counter storage operations.
type LoginAttemptRepository interface {
	Find(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error)
	RecordFailure(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error)
	Clear(ctx context.Context, ip, device, email string) error
}

// SecurityUserRepository covers the per-account security state mutations.
type SecurityUserRepository interface {
	IncrementLoginAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error)
	LockAccount(ctx context.Context, id string, until time.Time) error
	ResetSecurityState(ctx context.Context, id string) error
}

// ThrottleConfig holds the two-tier thresholds: a per-device tuple counter
// with a temporary block, and a per-account counter with an account lock.
type ThrottleConfig struct {
	DeviceMaxAttempts   int
	DeviceBlockDuration time.Duration
	AccountMaxAttempts  int
	AccountLockDuration time.Duration
}

// ThrottleService enforces login throttling. Admission is decided per
// (ip, device fingerprint, email) tuple before any credential work; the
// account-level counter locks the whole account independently of which
// device the failures came from.
type ThrottleService struct {
	attempts LoginAttemptRepository
	users    SecurityUserRepository
	config   ThrottleConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewThrottleService(attempts LoginAttemptRepository, users SecurityUserRepository, config ThrottleConfig, logger *slog.Logger) *ThrottleService {
	return &ThrottleService{
		attempts: attempts,
		users:    users,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAdmission decides whether a login attempt from this tuple may proceed
// to credential verification. A blocked tuple is rejected with the remaining
// wait rounded up to whole minutes. Storage failures are surfaced, never
// treated as admission.
func (s *ThrottleService) CheckAdmission(ctx context.Context, ip, device, email string) error {
	attempt, err := s.attempts.Find(ctx, ip, device, email)
	if err != nil {
		s.logger.Error("admission check failed", slog.Any("error", err))
		return errors.Join(models.ErrInfrastructure, err)
	}
	if attempt == nil {
		return nil
	}

	if now := s.now(); attempt.Blocked(now) {
		minutes := attempt.BlockedMinutes(now)
		s.logger.Warn("login attempt on blocked device",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("device", device),
			slog.Int("retry_after_minutes", minutes))
		return models.NewRetryableAuthError(models.ErrRateLimited, minutes)
	}

	return nil
}

// RecordFailure registers one failed credential check against the tuple
// counter and, when the user exists, against the account counter. The tuple
// crossing its threshold starts the device block window; the block expiry is
// never extended by failures inside the window. The account crossing its
// threshold locks the account.
func (s *ThrottleService) RecordFailure(ctx context.Context, ip, device, email string, user *models.User) error {
	attempt, err := s.attempts.RecordFailure(ctx, ip, device, email,
		s.config.DeviceMaxAttempts, s.config.DeviceBlockDuration)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return errors.Join(models.ErrInfrastructure, err)
	}

	if attempt.BlockedUntil != nil && attempt.AttemptCount == s.config.DeviceMaxAttempts {
		s.logger.Warn("device block window started",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("device", device),
			slog.Time("blocked_until", *attempt.BlockedUntil))
	}

	if user == nil {
		// Unknown account: only the tuple counter moves.
		return nil
	}

	updated, err := s.users.IncrementLoginAttempts(ctx, user.ID,
		s.config.AccountMaxAttempts, s.config.AccountLockDuration)
	if err != nil {
		s.logger.Error("failed to increment account counter",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return errors.Join(models.ErrInfrastructure, err)
	}

	if updated.AccountLocked && updated.LoginAttempts == s.config.AccountMaxAttempts {
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", user.ID),
			slog.Int("attempts", updated.LoginAttempts))
	}

	return nil
}

// CheckAccountLock rejects users whose account counter has crossed its
// threshold. The lock is only consulted after the password matched, so an
// attacker cannot use it to confirm credentials. A correct password on a
// counter already past the threshold still locks: the account is considered
// too compromised to trust until the window passes.
func (s *ThrottleService) CheckAccountLock(ctx context.Context, user *models.User) error {
	now := s.now()

	if !user.AccountLocked {
		if user.LoginAttempts < s.config.AccountMaxAttempts {
			return nil
		}
		// Counter crossed the threshold without the lock flag being set
		// (legacy rows, manual counter edits). Lock now.
		until := now.Add(s.config.AccountLockDuration)
		if err := s.users.LockAccount(ctx, user.ID, until); err != nil {
			s.logger.Error("failed to lock account",
				slog.String("user_id", user.ID), slog.Any("error", err))
			return errors.Join(models.ErrInfrastructure, err)
		}
		s.logger.Warn("account locked on credential match",
			slog.String("user_id", user.ID),
			slog.Int("attempts", user.LoginAttempts))
		return models.ErrAccountLocked
	}

	if user.LockUntil != nil && !user.LockUntil.After(now) {
		// Lock expired; clean state so the login proceeds with a fresh counter.
		if err := s.users.ResetSecurityState(ctx, user.ID); err != nil {
			s.logger.Error("failed to clear expired account lock",
				slog.String("user_id", user.ID), slog.Any("error", err))
			return errors.Join(models.ErrInfrastructure, err)
		}
		return nil
	}

	s.logger.Warn("login attempt on locked account", slog.String("user_id", user.ID))
	return models.ErrAccountLocked
}

// ClearOnSuccess removes every counter row touching this ip, device, or
// email and resets the account's security state. The clear is deliberately
// broad: one legitimate login vouches for every tuple sharing any element.
func (s *ThrottleService) ClearOnSuccess(ctx context.Context, ip, device, email, userID string) error {
	if err := s.attempts.Clear(ctx, ip, device, email); err != nil {
		s.logger.Error("failed to clear login attempts", slog.Any("error", err))
		return errors.Join(models.ErrInfrastructure, err)
	}
	if err := s.users.ResetSecurityState(ctx, userID); err != nil {
		s.logger.Error("failed to reset account security state",
			slog.String("user_id", userID), slog.Any("error", err))
		return errors.Join(models.ErrInfrastructure, err)
	}
	return nil
}

// DeviceFingerprint derives the stable device identifier from the client IP
// and User-Agent header.
func DeviceFingerprint(ipAddress, userAgent string) string {
	data := []byte(fmt.Sprintf("%s:%s", ipAddress, userAgent))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}
