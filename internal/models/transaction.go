package models

import "time"

// Transaction types
const (
	TransactionDeposit      = "deposit"
	TransactionTransfer     = "transfer"
	TransactionSubscription = "subscription"
	TransactionRefund       = "refund"
)

// Transaction statuses
const (
	TransactionPending   = "pending"
	TransactionSucceeded = "succeeded"
	TransactionFailed    = "failed"
)

// Transaction is a single wallet movement. Amounts are stored in cents.
type Transaction struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	Type          string     `db:"type"`
	Status        string     `db:"status"`
	AmountCents   int64      `db:"amount_cents"`
	Currency      string     `db:"currency"`
	Description   string     `db:"description"`
	RecipientID   *string    `db:"recipient_id"`
	ProviderRef   string     `db:"provider_ref"` // Payment intent / invoice reference at the billing provider
	FailureReason *string    `db:"failure_reason"`
	ProcessedAt   time.Time  `db:"processed_at"`
	CreatedAt     time.Time  `db:"created_at"`
}
