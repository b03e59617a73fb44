package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/models"
)

const userColumns = `
	id, email, password_hash, name, role, verified,
	otp_secret, otp_expires_at, reset_secret, reset_expires_at,
	subscribed, subscription_plan, subscription_id, subscription_ends_at,
	billing_customer_id, billing_cardholder_id,
	wallet_balance_cents, currency,
	login_attempts, account_locked, lock_until, last_login,
	created_at, updated_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var u models.User
	var passwordHash, otpSecret, resetSecret *string
	var subscriptionID, customerID, cardholderID *string

	err := scanner.Scan(
		&u.ID, &u.Email, &passwordHash, &u.Name, &u.Role, &u.Verified,
		&otpSecret, &u.OTPExpiresAt, &resetSecret, &u.ResetExpiresAt,
		&u.Subscribed, &u.SubscriptionPlan, &subscriptionID, &u.SubscriptionEndsAt,
		&customerID, &cardholderID,
		&u.WalletBalanceCents, &u.Currency,
		&u.LoginAttempts, &u.AccountLocked, &u.LockUntil, &u.LastLogin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if otpSecret != nil {
		u.OTPSecret = *otpSecret
	}
	if resetSecret != nil {
		u.ResetSecret = *resetSecret
	}
	if subscriptionID != nil {
		u.SubscriptionID = *subscriptionID
	}
	if customerID != nil {
		u.BillingCustomerID = *customerID
	}
	if cardholderID != nil {
		u.BillingCardholderID = *cardholderID
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByBillingCustomer(ctx context.Context, customerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE billing_customer_id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, customerID))
}

func (r *UserRepository) GetByCardholder(ctx context.Context, cardholderID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE billing_cardholder_id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, cardholderID))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, verified, otp_secret, otp_expires_at, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	id := uuid.New().String()
	currency := user.Currency
	if currency == "" {
		currency = "USD"
	}

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		id, user.Email, user.PasswordHash, user.Name, user.Role, user.Verified,
		nullable(user.OTPSecret), user.OTPExpiresAt, currency,
	))
}

// UpdateProfile changes profile fields only. Security and subscription
// columns are deliberately unreachable from this statement.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, role string) (*models.User, error) {
	query := `
		UPDATE users SET name = $2, role = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id, name, role))
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// --- Account security state ---
// These are the only write paths for login_attempts / account_locked /
// lock_until / last_login. Each is a single conditional UPDATE so racing
// login attempts cannot lose increments.

// IncrementLoginAttempts bumps the account-level failure counter and, when
// it reaches threshold, sets the lock atomically in the same statement.
// Returns the updated security state.
func (r *UserRepository) IncrementLoginAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error) {
	query := `
		UPDATE users SET
			login_attempts = login_attempts + 1,
			account_locked = (login_attempts + 1 >= $2),
			lock_until = CASE
				WHEN login_attempts + 1 >= $2 AND lock_until IS NULL THEN now() + make_interval(secs => $3)
				ELSE lock_until
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id, threshold, lockFor.Seconds()))
}

// LockAccount marks the account locked until the given time.
func (r *UserRepository) LockAccount(ctx context.Context, id string, until time.Time) error {
	query := `
		UPDATE users SET account_locked = true, lock_until = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, until)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResetSecurityState clears all failure tracking after a successful login.
func (r *UserRepository) ResetSecurityState(ctx context.Context, id string) error {
	query := `
		UPDATE users SET
			login_attempts = 0,
			account_locked = false,
			lock_until = NULL,
			last_login = now(),
			updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// --- Verification and password reset ---

func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users SET verified = true, otp_secret = NULL, otp_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

func (r *UserRepository) SetOTPSecret(ctx context.Context, id, secret string, expiresAt time.Time) error {
	query := `UPDATE users SET otp_secret = $2, otp_expires_at = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, secret, expiresAt)
	return database.MapPostgresError(err)
}

func (r *UserRepository) SetResetSecret(ctx context.Context, id, secret string, expiresAt time.Time) error {
	query := `UPDATE users SET reset_secret = $2, reset_expires_at = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, secret, expiresAt)
	return database.MapPostgresError(err)
}

// ClearExpiredSecrets nulls out verification and reset secrets whose validity
// window has elapsed. Run by the background cleanup manager.
func (r *UserRepository) ClearExpiredSecrets(ctx context.Context) (int64, error) {
	query := `
		UPDATE users SET
			otp_secret = CASE WHEN otp_expires_at < now() THEN NULL ELSE otp_secret END,
			otp_expires_at = CASE WHEN otp_expires_at < now() THEN NULL ELSE otp_expires_at END,
			reset_secret = CASE WHEN reset_expires_at < now() THEN NULL ELSE reset_secret END,
			reset_expires_at = CASE WHEN reset_expires_at < now() THEN NULL ELSE reset_expires_at END,
			updated_at = now()
		WHERE otp_expires_at < now() OR reset_expires_at < now()
	`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// UpdatePassword stores a new hash and consumes any pending reset secret.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $2, reset_secret = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, id, passwordHash)
	return database.MapPostgresError(err)
}

// --- Subscription state ---

func (r *UserRepository) SetSubscription(ctx context.Context, id, plan, subscriptionID string, endsAt *time.Time) error {
	query := `
		UPDATE users SET
			subscribed = true,
			subscription_plan = $2,
			subscription_id = $3,
			subscription_ends_at = $4,
			updated_at = now()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, id, plan, subscriptionID, endsAt)
	return database.MapPostgresError(err)
}

func (r *UserRepository) ClearSubscription(ctx context.Context, id string) error {
	query := `
		UPDATE users SET
			subscribed = false,
			subscription_plan = NULL,
			subscription_id = NULL,
			subscription_ends_at = NULL,
			updated_at = now()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// ExtendSubscriptionByCustomer pushes the paid-through date forward when the
// provider reports a successful invoice payment.
func (r *UserRepository) ExtendSubscriptionByCustomer(ctx context.Context, customerID string, endsAt time.Time) error {
	query := `
		UPDATE users SET subscribed = true, subscription_ends_at = $2, updated_at = now()
		WHERE billing_customer_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, customerID, endsAt)
	return database.MapPostgresError(err)
}

// ClearSubscriptionByProviderRef handles provider-side cancellation webhooks.
func (r *UserRepository) ClearSubscriptionByProviderRef(ctx context.Context, subscriptionID string) error {
	query := `
		UPDATE users SET
			subscribed = false,
			subscription_plan = NULL,
			subscription_id = NULL,
			subscription_ends_at = NULL,
			updated_at = now()
		WHERE subscription_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, subscriptionID)
	return database.MapPostgresError(err)
}

func (r *UserRepository) SetBillingCustomer(ctx context.Context, id, customerID string) error {
	query := `UPDATE users SET billing_customer_id = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, customerID)
	return database.MapPostgresError(err)
}

// Stats aggregates the account counts shown on the admin dashboard.
func (r *UserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE verified),
			count(*) FILTER (WHERE subscribed),
			count(*) FILTER (WHERE account_locked)
		FROM users
	`

	var stats models.UserStats
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&stats.Total, &stats.Verified, &stats.Subscribed, &stats.Locked,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &stats, nil
}

// --- Wallet ---

// CreditWallet adds to a user's balance outside a transfer (deposits).
func (r *UserRepository) CreditWallet(ctx context.Context, id string, amountCents int64) (int64, error) {
	query := `
		UPDATE users SET wallet_balance_cents = wallet_balance_cents + $2, updated_at = now()
		WHERE id = $1
		RETURNING wallet_balance_cents
	`

	var balance int64
	if err := r.db.Pool.QueryRow(ctx, query, id, amountCents).Scan(&balance); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return balance, nil
}

// TransferWallet moves funds between two users inside the caller's
// transaction. The debit is conditional on sufficient balance; zero rows
// means the sender could not cover the amount.
func (r *UserRepository) TransferWallet(ctx context.Context, tx pgx.Tx, senderID, recipientID string, amountCents int64) (int64, error) {
	debit := `
		UPDATE users SET wallet_balance_cents = wallet_balance_cents - $2, updated_at = now()
		WHERE id = $1 AND wallet_balance_cents >= $2
		RETURNING wallet_balance_cents
	`

	var senderBalance int64
	err := tx.QueryRow(ctx, debit, senderID, amountCents).Scan(&senderBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, models.ErrInsufficientFunds
		}
		return 0, database.MapPostgresError(err)
	}

	credit := `
		UPDATE users SET wallet_balance_cents = wallet_balance_cents + $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, credit, recipientID, amountCents)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, models.ErrNotFound
	}

	return senderBalance, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
