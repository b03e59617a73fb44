package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/models"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// BillingUserRepository covers the subscription and billing-reference
// columns on the user record.
type BillingUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByBillingCustomer(ctx context.Context, customerID string) (*models.User, error)
	GetByCardholder(ctx context.Context, cardholderID string) (*models.User, error)
	SetBillingCustomer(ctx context.Context, id, customerID string) error
	SetSubscription(ctx context.Context, id, plan, subscriptionID string, endsAt *time.Time) error
	ClearSubscription(ctx context.Context, id string) error
	ExtendSubscriptionByCustomer(ctx context.Context, customerID string, endsAt time.Time) error
	ClearSubscriptionByProviderRef(ctx context.Context, subscriptionID string) error
}

// TransactionRecorder appends entries to the wallet ledger.
type TransactionRecorder interface {
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
}

// CardStore persists provider-issued cards.
type CardStore interface {
	Create(ctx context.Context, card *models.Card) (*models.Card, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Card, error)
}

// SubscriptionService drives the subscription lifecycle against the billing
// provider and applies provider webhooks to local state.
type SubscriptionService struct {
	users        BillingUserRepository
	transactions TransactionRecorder
	cards        CardStore
	provider     billing.Provider
	planPrices   map[string]string // plan name -> provider price ID
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

func NewSubscriptionService(users BillingUserRepository, transactions TransactionRecorder, cards CardStore, provider billing.Provider, planPrices map[string]string, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SubscriptionService {
	return &SubscriptionService{
		users:        users,
		transactions: transactions,
		cards:        cards,
		provider:     provider,
		planPrices:   planPrices,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// ListPlans returns the purchasable plans from the provider catalog.
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.provider.ListPlans(ctx)
	if err != nil {
		s.logger.Error("failed to list plans", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return plans, nil
}

// Subscribe starts a subscription on the named plan, creating the provider
// customer on first use and attaching the supplied payment method.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error) {
	if !models.ValidPlan(plan) {
		return nil, models.ErrBadRequest
	}
	priceID, ok := s.planPrices[plan]
	if !ok {
		s.logger.Error("plan has no configured price", slog.String("plan", plan))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Subscribed {
		return nil, models.ErrConflict
	}

	customerID, err := s.provider.EnsureCustomer(ctx, user)
	if err != nil {
		s.logger.Error("failed to ensure billing customer", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.BillingCustomerID == "" {
		if err := s.users.SetBillingCustomer(ctx, userID, customerID); err != nil {
			return nil, err
		}
	}

	if err := s.provider.AttachPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		s.logger.Error("failed to attach payment method", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrBadRequest
	}

	sub, err := s.provider.CreateSubscription(ctx, customerID, priceID, userID)
	if err != nil {
		s.logger.Error("failed to create subscription", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.SetSubscription(ctx, userID, plan, sub.ID, &sub.PeriodEnd); err != nil {
		// Provider-side subscription exists but local state does not; the
		// invoice webhook will reconcile the period end.
		s.logger.Error("failed to store subscription", slog.String("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("subscription started",
		slog.String("user_id", userID),
		slog.String("plan", plan),
		slog.String("subscription_id", sub.ID))
	s.auditLogger.LogAccountAction("subscription_started", userID, "", map[string]string{"plan": plan})

	return s.users.GetByID(ctx, userID)
}

// Cancel ends the subscription at the provider and clears local entitlement
// immediately.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Subscribed || user.SubscriptionID == "" {
		return models.ErrNotFound
	}

	if err := s.provider.CancelSubscription(ctx, user.SubscriptionID); err != nil {
		s.logger.Error("failed to cancel subscription", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.ClearSubscription(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("subscription canceled", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("subscription_canceled", userID, "", nil)
	return nil
}

// ListCards returns the user's provider-issued cards.
func (s *SubscriptionService) ListCards(ctx context.Context, userID string) ([]*models.Card, error) {
	return s.cards.ListByUser(ctx, userID)
}

// HandleWebhook verifies and applies a billing provider event. Unknown event
// kinds are acknowledged without action so the provider stops retrying them.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			s.logger.Warn("webhook signature rejected")
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to parse webhook", slog.Any("error", err))
		return models.ErrBadRequest
	}

	switch event.Type {
	case billing.EventInvoicePaid:
		err = s.applyInvoicePaid(ctx, event)
	case billing.EventSubscriptionCanceled:
		err = s.applySubscriptionCanceled(ctx, event)
	case billing.EventCardIssued:
		err = s.applyCardIssued(ctx, event)
	default:
		s.logger.Debug("ignoring webhook event", slog.String("event_type", event.ProviderType))
		s.auditLogger.LogBillingEvent(event.ProviderType, "", false)
		return nil
	}

	s.auditLogger.LogBillingEvent(event.ProviderType, event.SubscriptionID, err == nil)
	return err
}

func (s *SubscriptionService) applyInvoicePaid(ctx context.Context, event *billing.WebhookEvent) error {
	user, err := s.users.GetByBillingCustomer(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("invoice for unknown customer", slog.String("customer_id", event.CustomerID))
			return nil
		}
		return err
	}

	if err := s.users.ExtendSubscriptionByCustomer(ctx, event.CustomerID, event.PeriodEnd); err != nil {
		return err
	}

	if event.AmountCents > 0 {
		_, err = s.transactions.Create(ctx, &models.Transaction{
			UserID:      user.ID,
			Type:        models.TransactionSubscription,
			Status:      models.TransactionSucceeded,
			AmountCents: -event.AmountCents,
			Currency:    event.Currency,
			Description: "subscription renewal",
		})
		if err != nil {
			return err
		}
	}

	s.logger.Info("subscription extended",
		slog.String("user_id", user.ID),
		slog.Time("ends_at", event.PeriodEnd))
	return nil
}

func (s *SubscriptionService) applySubscriptionCanceled(ctx context.Context, event *billing.WebhookEvent) error {
	if err := s.users.ClearSubscriptionByProviderRef(ctx, event.SubscriptionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("cancellation for unknown subscription", slog.String("subscription_id", event.SubscriptionID))
			return nil
		}
		return err
	}

	s.logger.Info("subscription ended by provider", slog.String("subscription_id", event.SubscriptionID))
	return nil
}

func (s *SubscriptionService) applyCardIssued(ctx context.Context, event *billing.WebhookEvent) error {
	user, err := s.users.GetByCardholder(ctx, event.Card.CardholderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("issued card for unknown cardholder", slog.String("cardholder_id", event.Card.CardholderID))
			return nil
		}
		return err
	}

	_, err = s.cards.Create(ctx, &models.Card{
		UserID:       user.ID,
		ProviderID:   event.Card.ID,
		CardholderID: event.Card.CardholderID,
		Last4:  event.Card.Last4,
		Brand:  event.Card.Brand,
		ExpMonth: event.Card.ExpMonth,
		ExpYear:  event.Card.ExpYear,
		Status:   event.Card.Status,
	})
	if err != nil {
		// Redelivered webhooks hit the provider_id unique constraint.
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return err
	}

	s.logger.Info("card stored", slog.String("user_id", user.ID), slog.String("last4", event.Card.Last4))
	return nil
}
