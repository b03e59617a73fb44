package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/models"
)

// LoginAttemptRepository is the durable store for per-tuple failure counters.
// It owns login_attempts rows exclusively; nothing else writes them.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Find returns the attempt record for the exact (ip, device, email) tuple,
// or nil when no failures have been recorded for it.
func (r *LoginAttemptRepository) Find(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, device_fingerprint, email, attempt_count, last_attempt_at, blocked_until
		FROM login_attempts
		WHERE ip_address = $1 AND device_fingerprint = $2 AND email = $3
	`

	attempt, err := scanAttemptRow(r.db.Pool.QueryRow(ctx, query, ip, device, email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return attempt, nil
}

// RecordFailure increments the tuple's counter, creating the row on first
// failure. The whole operation is a single upsert so concurrent failures
// never under-count. An active block window is never moved by further
// failures; an elapsed window is treated as absent, so a failure after
// expiry with the counter still at or past the threshold opens a fresh
// window immediately.
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error) {
	query := `
		INSERT INTO login_attempts (ip_address, device_fingerprint, email, attempt_count, last_attempt_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (ip_address, device_fingerprint, email) DO UPDATE SET
			attempt_count   = login_attempts.attempt_count + 1,
			last_attempt_at = now(),
			blocked_until   = CASE
				WHEN login_attempts.blocked_until > now() THEN login_attempts.blocked_until
				WHEN login_attempts.attempt_count + 1 >= $4 THEN now() + make_interval(secs => $5)
				ELSE NULL
			END
		RETURNING id, ip_address, device_fingerprint, email, attempt_count, last_attempt_at, blocked_until
	`

	attempt, err := scanAttemptRow(r.db.Pool.QueryRow(ctx, query, ip, device, email, threshold, blockFor.Seconds()))
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// Clear removes every record matching the ip OR the device OR the email.
// A successful login from one vector wipes attempt history across all
// vectors sharing any identifying field.
func (r *LoginAttemptRepository) Clear(ctx context.Context, ip, device, email string) error {
	query := `
		DELETE FROM login_attempts
		WHERE ip_address = $1 OR device_fingerprint = $2 OR email = $3
	`

	_, err := r.db.Pool.Exec(ctx, query, ip, device, email)
	return database.MapPostgresError(err)
}

// FindByEmail lists attempt records for an email, for the admin security log.
func (r *LoginAttemptRepository) FindByEmail(ctx context.Context, email string) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, device_fingerprint, email, attempt_count, last_attempt_at, blocked_until
		FROM login_attempts
		WHERE email = $1
		ORDER BY last_attempt_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, email)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		attempt, err := scanAttemptRow(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return attempts, nil
}

// DeleteByEmail removes all attempt records for an email (account deletion).
func (r *LoginAttemptRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE email = $1`, email)
	return database.MapPostgresError(err)
}

// DeleteExpired reclaims rows whose block window has elapsed. Rows that
// never reached the block threshold are untouched, mirroring a TTL index
// keyed on blocked_until.
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE blocked_until IS NOT NULL AND blocked_until <= now()`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// CountActive reports open counter rows and how many are currently blocking.
func (r *LoginAttemptRepository) CountActive(ctx context.Context) (total, blocked int64, err error) {
	query := `
		SELECT count(*), count(*) FILTER (WHERE blocked_until > now())
		FROM login_attempts
	`
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&total, &blocked); err != nil {
		return 0, 0, database.MapPostgresError(err)
	}
	return total, blocked, nil
}

func scanAttemptRow(scanner interface{ Scan(dest ...any) error }) (*models.LoginAttempt, error) {
	var attempt models.LoginAttempt
	var blockedUntil *time.Time

	err := scanner.Scan(
		&attempt.ID, &attempt.IPAddress, &attempt.DeviceFingerprint, &attempt.Email,
		&attempt.AttemptCount, &attempt.LastAttemptAt, &blockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	attempt.BlockedUntil = blockedUntil
	return &attempt, nil
}
