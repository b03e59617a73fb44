// Package billing wraps the third-party billing processor behind a narrow
// contract. Services and handlers depend on Provider only; the processor's
// own types never leak past this package.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/payward/payward/internal/models"
)

var (
	// ErrProvider marks failures reported by the billing processor itself.
	ErrProvider = errors.New("billing provider error")
	// ErrBadSignature marks webhook payloads that fail signature verification.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// Subscription is the provider-side subscription state we care about.
type Subscription struct {
	ID        string
	PeriodEnd time.Time
}

// Charge is the settled result of a deposit payment.
type Charge struct {
	ID            string
	AmountCents   int64
	Currency      string
	Succeeded     bool
	FailureReason string
}

// IssuedCard describes a card created by the provider's issuing flow.
type IssuedCard struct {
	ID           string
	CardholderID string
	Last4        string
	Brand        string
	ExpMonth     int
	ExpYear      int
	Status       string
}

// Webhook event kinds surfaced to the application. Everything else the
// provider sends is reported as EventIgnored.
type EventType string

const (
	EventInvoicePaid          EventType = "invoice_paid"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventCardIssued           EventType = "card_issued"
	EventIgnored              EventType = "ignored"
)

// WebhookEvent is a provider webhook translated into domain terms.
type WebhookEvent struct {
	Type           EventType
	ProviderType   string // Raw provider event name, for auditing
	CustomerID     string
	SubscriptionID string
	PeriodEnd      time.Time
	AmountCents    int64
	Currency       string
	Card           *IssuedCard
}

// Provider is the contract with the billing processor. Implementations must
// honor the context deadline on every call.
type Provider interface {
	// EnsureCustomer returns the user's provider-side customer ID, creating
	// the customer on first use.
	EnsureCustomer(ctx context.Context, user *models.User) (string, error)

	// AttachPaymentMethod binds a payment method to the customer and makes
	// it the default for invoices.
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	// CreateSubscription starts a recurring subscription on the given price.
	CreateSubscription(ctx context.Context, customerID, priceID, userID string) (*Subscription, error)

	// CancelSubscription cancels the provider-side subscription immediately.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// ListPlans returns the purchasable recurring plans from the catalog.
	ListPlans(ctx context.Context) ([]models.Plan, error)

	// ChargeDeposit collects a one-off payment funding the user's wallet.
	ChargeDeposit(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string) (*Charge, error)

	// ParseWebhook verifies the payload signature and translates the event.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
