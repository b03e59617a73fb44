package models

import "time"

// Card statuses as reported by the billing provider's issuing webhooks.
const (
	CardActive   = "active"
	CardInactive = "inactive"
	CardCanceled = "canceled"
)

// Card is a payment card issued to a user through the billing provider.
// Rows are created from issuing webhooks, never from client requests.
type Card struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	ProviderID   string    `db:"provider_id"` // Card reference at the billing provider
	CardholderID string    `db:"cardholder_id"`
	Last4        string    `db:"last4"`
	Brand        string    `db:"brand"`
	ExpMonth     int       `db:"exp_month"`
	ExpYear      int       `db:"exp_year"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
}
