package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and its connection pool.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container, runs the migrations, and
// returns a ready TestDB.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("payward"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Goose needs a database/sql connection; adapt the pgx pool config.
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Teardown stops the container and closes the connection pool.
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"cards",
		"transactions",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// SeedUser inserts a verified, subscribed account ready to log in.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (*models.User, error) {
	return seedUser(ctx, pool, email, password, true, true)
}

// SeedUnverifiedUser inserts an account that has not confirmed its email.
func SeedUnverifiedUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (*models.User, error) {
	return seedUser(ctx, pool, email, password, false, false)
}

// SeedUnsubscribedUser inserts a verified account with no subscription.
func SeedUnsubscribedUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (*models.User, error) {
	return seedUser(ctx, pool, email, password, true, false)
}

func seedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, verified, subscribed bool) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var plan *string
	if subscribed {
		p := "pro"
		plan = &p
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, verified, subscribed, subscription_plan, currency)
		VALUES ($1, $2, $3, $4, 'user', $5, $6, $7, 'USD')
		RETURNING id, email, verified, subscribed, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query,
		uuid.New().String(), email, hashedPassword, "Test User", verified, subscribed, plan,
	).Scan(&user.ID, &user.Email, &user.Verified, &user.Subscribed, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user.Name = "Test User"
	user.PasswordHash = hashedPassword
	return &user, nil
}

// CreditWallet tops up a seeded user's balance directly.
func CreditWallet(ctx context.Context, pool *pgxpool.Pool, userID string, amountCents int64) error {
	_, err := pool.Exec(ctx,
		`UPDATE users SET wallet_balance_cents = wallet_balance_cents + $2 WHERE id = $1`,
		userID, amountCents)
	return err
}

// AttemptCount reads the failure counter for a tuple, 0 when no row exists.
func AttemptCount(ctx context.Context, pool *pgxpool.Pool, email string) (int, error) {
	var count int
	err := pool.QueryRow(ctx,
		`SELECT COALESCE(max(attempt_count), 0) FROM login_attempts WHERE email = $1`,
		email).Scan(&count)
	return count, err
}
