package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/payward/payward/internal/models"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

func NewStripeProvider(secretKey, webhookSecret string, logger *slog.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// EnsureCustomer returns the user's provider customer ID, creating the
// customer on first use.
func (p *StripeProvider) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.BillingCustomerID != "" {
		return user.BillingCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(user.Email),
		Name:   stripe.String(user.Name),
	}
	params.AddMetadata("user_id", user.ID)

	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", ErrProvider, err)
	}

	return customer.ID, nil
}

func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := p.api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return fmt.Errorf("%w: attach payment method: %v", ErrProvider, err)
	}

	_, err = p.api.Customers.Update(customerID, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: set default payment method: %v", ErrProvider, err)
	}

	return nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, customerID, priceID, userID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.AddMetadata("user_id", userID)

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create subscription: %v", ErrProvider, err)
	}

	return &Subscription{
		ID:        sub.ID,
		PeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0),
	}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := p.api.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("%w: cancel subscription: %v", ErrProvider, err)
	}
	return nil
}

func (p *StripeProvider) ListPlans(ctx context.Context) ([]models.Plan, error) {
	params := &stripe.PriceListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Active:     stripe.Bool(true),
		Type:       stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.AddExpand("data.product")

	var plans []models.Plan
	iter := p.api.Prices.List(params)
	for iter.Next() {
		price := iter.Price()
		plan := models.Plan{
			ID:       price.ID,
			Amount:   float64(price.UnitAmount) / 100,
			Currency: string(price.Currency),
		}
		if price.Recurring != nil {
			plan.Interval = string(price.Recurring.Interval)
		}
		if price.Product != nil {
			plan.Name = price.Product.Name
		}
		plans = append(plans, plan)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: list prices: %v", ErrProvider, err)
	}

	return plans, nil
}

func (p *StripeProvider) ChargeDeposit(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string) (*Charge, error) {
	intent, err := p.api.PaymentIntents.New(&stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(currency),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create payment intent: %v", ErrProvider, err)
	}

	charge := &Charge{
		ID:          intent.ID,
		AmountCents: intent.Amount,
		Currency:    string(intent.Currency),
		Succeeded:   intent.Status == stripe.PaymentIntentStatusSucceeded,
	}
	if !charge.Succeeded {
		charge.FailureReason = string(intent.Status)
	}

	return charge, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &WebhookEvent{
		Type:         EventIgnored,
		ProviderType: string(event.Type),
	}

	switch event.Type {
	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrProvider, err)
		}
		if invoice.Customer == nil {
			p.logger.Warn("invoice event without customer", "event_type", event.Type)
			return out, nil
		}
		out.Type = EventInvoicePaid
		out.CustomerID = invoice.Customer.ID
		out.PeriodEnd = time.Unix(invoice.PeriodEnd, 0)
		out.AmountCents = invoice.AmountPaid
		out.Currency = string(invoice.Currency)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrProvider, err)
		}
		out.Type = EventSubscriptionCanceled
		out.SubscriptionID = sub.ID

	case "issuing_card.created":
		var card stripe.IssuingCard
		if err := json.Unmarshal(event.Data.Raw, &card); err != nil {
			return nil, fmt.Errorf("%w: decode issuing card: %v", ErrProvider, err)
		}
		issued := &IssuedCard{
			ID:       card.ID,
			Last4:    card.Last4,
			ExpMonth: int(card.ExpMonth),
			ExpYear:  int(card.ExpYear),
			Status:   string(card.Status),
		}
		if card.Brand != "" {
			issued.Brand = string(card.Brand)
		}
		if card.Cardholder != nil {
			issued.CardholderID = card.Cardholder.ID
		}
		out.Type = EventCardIssued
		out.Card = issued
	}

	return out, nil
}
