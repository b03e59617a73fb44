package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/models"
	pkglogger "github.com/payward/payward/pkg/logger"
)

func newTestSubscriptionService(users *MockUserRepository, ledger *MockLedgerRepository, cards *MockCardStore, provider *MockBillingProvider) *SubscriptionService {
	logger := testLogger()
	if ledger == nil {
		ledger = &MockLedgerRepository{}
	}
	if cards == nil {
		cards = &MockCardStore{}
	}
	if provider == nil {
		provider = &MockBillingProvider{}
	}
	prices := map[string]string{
		models.PlanBasic:      "price_basic",
		models.PlanPro:        "price_pro",
		models.PlanEnterprise: "price_enterprise",
	}
	return NewSubscriptionService(users, ledger, cards, provider, prices, logger, pkglogger.NewAuditLogger(logger))
}

func TestSubscriptionService_Subscribe(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "user@example.com", Name: "Test User"}
	var storedPlan, storedSubID string
	var storedCustomer string
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		SetBillingCustomerFunc: func(ctx context.Context, id, customerID string) error {
			storedCustomer = customerID
			return nil
		},
		SetSubscriptionFunc: func(ctx context.Context, id, plan, subscriptionID string, endsAt *time.Time) error {
			storedPlan, storedSubID = plan, subscriptionID
			return nil
		},
	}
	var usedPrice string
	provider := &MockBillingProvider{
		CreateSubscriptionFunc: func(ctx context.Context, customerID, priceID, userID string) (*billing.Subscription, error) {
			usedPrice = priceID
			return &billing.Subscription{ID: "sub_1", PeriodEnd: time.Now().Add(30 * 24 * time.Hour)}, nil
		},
	}
	svc := newTestSubscriptionService(users, nil, nil, provider)

	_, err := svc.Subscribe(context.Background(), "user-1", models.PlanPro, "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_test", storedCustomer, "first subscribe stores the new billing customer")
	assert.Equal(t, "price_pro", usedPrice)
	assert.Equal(t, models.PlanPro, storedPlan)
	assert.Equal(t, "sub_1", storedSubID)
}

func TestSubscriptionService_Subscribe_InvalidPlan(t *testing.T) {
	svc := newTestSubscriptionService(&MockUserRepository{}, nil, nil, nil)

	_, err := svc.Subscribe(context.Background(), "user-1", "platinum", "pm_1")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSubscriptionService_Subscribe_AlreadySubscribed(t *testing.T) {
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Subscribed: true}, nil
		},
	}
	svc := newTestSubscriptionService(users, nil, nil, nil)

	_, err := svc.Subscribe(context.Background(), "user-1", models.PlanBasic, "pm_1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSubscriptionService_Cancel(t *testing.T) {
	user := &models.User{ID: "user-1", Subscribed: true, SubscriptionID: "sub_1"}
	cleared := false
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		ClearSubscriptionFunc: func(ctx context.Context, id string) error {
			cleared = true
			return nil
		},
	}
	var canceledID string
	provider := &MockBillingProvider{
		CancelSubscriptionFunc: func(ctx context.Context, subscriptionID string) error {
			canceledID = subscriptionID
			return nil
		},
	}
	svc := newTestSubscriptionService(users, nil, nil, provider)

	require.NoError(t, svc.Cancel(context.Background(), "user-1"))
	assert.Equal(t, "sub_1", canceledID)
	assert.True(t, cleared)
}

func TestSubscriptionService_Cancel_NotSubscribed(t *testing.T) {
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id}, nil
		},
	}
	svc := newTestSubscriptionService(users, nil, nil, nil)

	err := svc.Cancel(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubscriptionService_HandleWebhook_BadSignature(t *testing.T) {
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return nil, billing.ErrBadSignature
		},
	}
	svc := newTestSubscriptionService(&MockUserRepository{}, nil, nil, provider)

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSubscriptionService_HandleWebhook_InvoicePaid(t *testing.T) {
	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return &billing.WebhookEvent{
				Type:         billing.EventInvoicePaid,
				ProviderType: "invoice.payment_succeeded",
				CustomerID:   "cus_1",
				PeriodEnd:    periodEnd,
				AmountCents:  999,
				Currency:     "usd",
			}, nil
		},
	}
	var extendedTo time.Time
	users := &MockUserRepository{
		GetByBillingCustomerFunc: func(ctx context.Context, customerID string) (*models.User, error) {
			return &models.User{ID: "user-1"}, nil
		},
		ExtendSubscriptionByCustomerFunc: func(ctx context.Context, customerID string, endsAt time.Time) error {
			extendedTo = endsAt
			return nil
		},
	}
	var recorded *models.Transaction
	ledger := &MockLedgerRepository{
		CreateFunc: func(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
			recorded = txn
			return txn, nil
		},
	}
	svc := newTestSubscriptionService(users, ledger, nil, provider)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, periodEnd, extendedTo)
	require.NotNil(t, recorded)
	assert.Equal(t, models.TransactionSubscription, recorded.Type)
	assert.Equal(t, int64(-999), recorded.AmountCents, "subscription charges are debit legs")
}

func TestSubscriptionService_HandleWebhook_SubscriptionCanceled(t *testing.T) {
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return &billing.WebhookEvent{
				Type:           billing.EventSubscriptionCanceled,
				ProviderType:   "customer.subscription.deleted",
				SubscriptionID: "sub_1",
			}, nil
		},
	}
	var clearedRef string
	users := &MockUserRepository{
		ClearSubscriptionByProviderRefFunc: func(ctx context.Context, subscriptionID string) error {
			clearedRef = subscriptionID
			return nil
		},
	}
	svc := newTestSubscriptionService(users, nil, nil, provider)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, "sub_1", clearedRef)
}

func TestSubscriptionService_HandleWebhook_CardIssued(t *testing.T) {
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return &billing.WebhookEvent{
				Type:         billing.EventCardIssued,
				ProviderType: "issuing_card.created",
				Card: &billing.IssuedCard{
					ID:           "ic_1",
					CardholderID: "ich_1",
					Last4:        "4242",
					Brand:        "Visa",
					Status:       models.CardActive,
				},
			}, nil
		},
	}
	users := &MockUserRepository{
		GetByCardholderFunc: func(ctx context.Context, cardholderID string) (*models.User, error) {
			return &models.User{ID: "user-1"}, nil
		},
	}
	var stored *models.Card
	cards := &MockCardStore{
		CreateFunc: func(ctx context.Context, card *models.Card) (*models.Card, error) {
			stored = card
			return card, nil
		},
	}
	svc := newTestSubscriptionService(users, nil, cards, provider)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "ic_1", stored.ProviderID)
	assert.Equal(t, "4242", stored.Last4)
}

func TestSubscriptionService_HandleWebhook_RedeliveredCardIsIdempotent(t *testing.T) {
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return &billing.WebhookEvent{
				Type:         billing.EventCardIssued,
				ProviderType: "issuing_card.created",
				Card:         &billing.IssuedCard{ID: "ic_1", CardholderID: "ich_1"},
			}, nil
		},
	}
	users := &MockUserRepository{
		GetByCardholderFunc: func(ctx context.Context, cardholderID string) (*models.User, error) {
			return &models.User{ID: "user-1"}, nil
		},
	}
	cards := &MockCardStore{
		CreateFunc: func(ctx context.Context, card *models.Card) (*models.Card, error) {
			return nil, models.ErrConflict
		},
	}
	svc := newTestSubscriptionService(users, nil, cards, provider)

	assert.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
}

func TestSubscriptionService_HandleWebhook_IgnoredEvent(t *testing.T) {
	provider := &MockBillingProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.WebhookEvent, error) {
			return &billing.WebhookEvent{Type: billing.EventIgnored, ProviderType: "charge.updated"}, nil
		},
	}
	svc := newTestSubscriptionService(&MockUserRepository{}, nil, nil, provider)

	assert.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
}
