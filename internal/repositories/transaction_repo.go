package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/models"
)

const transactionColumns = `
	id, user_id, type, status, amount_cents, currency, description,
	recipient_id, provider_ref, failure_reason, processed_at, created_at`

type TransactionRepository struct {
	db *database.DB
}

func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, user_id, type, status, amount_cents, currency, description, recipient_id, provider_ref, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING ` + transactionColumns

	return scanTransactionRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), txn.UserID, txn.Type, txn.Status, txn.AmountCents,
		txn.Currency, txn.Description, txn.RecipientID, nullable(txn.ProviderRef), txn.FailureReason,
	))
}

// CreateInTx records a transaction as part of a larger unit of work, such as
// the two leg entries of a wallet transfer.
func (r *TransactionRepository) CreateInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, user_id, type, status, amount_cents, currency, description, recipient_id, provider_ref, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING ` + transactionColumns

	return scanTransactionRow(tx.QueryRow(ctx, query,
		uuid.New().String(), txn.UserID, txn.Type, txn.Status, txn.AmountCents,
		txn.Currency, txn.Description, txn.RecipientID, nullable(txn.ProviderRef), txn.FailureReason,
	))
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY processed_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryTransactions(ctx, query, userID, limit, offset)
}

// ListByUserBetween returns a user's transactions inside [start, end],
// oldest first, for invoice generation.
func (r *TransactionRepository) ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND processed_at >= $2 AND processed_at <= $3
		ORDER BY processed_at ASC
	`
	return r.queryTransactions(ctx, query, userID, start, end)
}

// VolumeSince reports ledger activity after the cutoff: row count and the
// sum of credit legs.
func (r *TransactionRepository) VolumeSince(ctx context.Context, since time.Time) (count, creditCents int64, err error) {
	query := `
		SELECT count(*), COALESCE(sum(amount_cents) FILTER (WHERE amount_cents > 0), 0)
		FROM transactions
		WHERE created_at >= $1
	`
	if err := r.db.Pool.QueryRow(ctx, query, since).Scan(&count, &creditCents); err != nil {
		return 0, 0, database.MapPostgresError(err)
	}
	return count, creditCents, nil
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	txns := make([]*models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return txns, nil
}

func scanTransactionRow(scanner rowScanner) (*models.Transaction, error) {
	var txn models.Transaction
	var description, providerRef *string

	err := scanner.Scan(
		&txn.ID, &txn.UserID, &txn.Type, &txn.Status, &txn.AmountCents, &txn.Currency,
		&description, &txn.RecipientID, &providerRef, &txn.FailureReason,
		&txn.ProcessedAt, &txn.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if description != nil {
		txn.Description = *description
	}
	if providerRef != nil {
		txn.ProviderRef = *providerRef
	}
	return &txn, nil
}
