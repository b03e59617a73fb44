package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptJanitor reclaims throttle rows whose block window has elapsed.
type AttemptJanitor interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SecretJanitor clears one-time code secrets whose validity has elapsed.
type SecretJanitor interface {
	ClearExpiredSecrets(ctx context.Context) (int64, error)
}

// CleanupManager periodically deletes expired login attempt blocks and stale
// one-time code secrets so neither grows without bound.
type CleanupManager struct {
	attempts AttemptJanitor
	secrets  SecretJanitor
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewCleanupManager(attempts AttemptJanitor, secrets SecretJanitor, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		attempts: attempts,
		secrets:  secrets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or ctx is cancelled.
// One pass runs immediately on startup.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.attempts.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to delete expired login attempts", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("expired login attempt cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}

	secretsCleared, err := cm.secrets.ClearExpiredSecrets(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clear expired one-time code secrets", slog.Any("error", err))
	} else if secretsCleared > 0 {
		cm.logger.Info("expired one-time code cleanup completed", slog.Int64("rows_cleared", secretsCleared))
	}
}

// Stop signals the cleanup loop to exit.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
