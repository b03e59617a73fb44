package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payward/payward/internal/models"
)

func TestSubscriptionHandler_ListPlans(t *testing.T) {
	mock := &MockSubscriptionService{
		ListPlansFunc: func(ctx context.Context) ([]models.Plan, error) {
			return []models.Plan{
				{ID: "price_basic", Name: "basic", Amount: 9.99, Currency: "usd", Interval: "month"},
				{ID: "price_pro", Name: "pro", Amount: 19.99, Currency: "usd", Interval: "month"},
			}, nil
		},
	}
	handler := NewSubscriptionHandler(mock)

	// No user in context: plans are public.
	req := NewTestRequest(t, "GET", "/subscriptions/plans", nil)
	w := httptest.NewRecorder()

	handler.ListPlans(w, req)

	var resp struct {
		Plans []models.Plan `json:"plans"`
	}
	AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Plans, 2)
	assert.Equal(t, "basic", resp.Plans[0].Name)
}

func TestSubscriptionHandler_Subscribe_Success(t *testing.T) {
	mock := &MockSubscriptionService{
		SubscribeFunc: func(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "pro", plan)
			assert.Equal(t, "pm_123", paymentMethodID)

			user := testUser()
			user.Subscribed = true
			return user, nil
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "POST", "/subscriptions", SubscribeRequest{
		Plan:            "pro",
		PaymentMethodID: "pm_123",
	}), testUser())
	w := httptest.NewRecorder()

	handler.Subscribe(w, req)

	var resp ProfileResponse
	AssertJSONResponse(t, w, 201, &resp)
	assert.True(t, resp.Subscribed)
}

func TestSubscriptionHandler_Subscribe_AlreadySubscribed(t *testing.T) {
	mock := &MockSubscriptionService{
		SubscribeFunc: func(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "POST", "/subscriptions", SubscribeRequest{
		Plan:            "pro",
		PaymentMethodID: "pm_123",
	}), testUser())
	w := httptest.NewRecorder()

	handler.Subscribe(w, req)

	AssertErrorResponse(t, w, 409, "conflict")
}

func TestSubscriptionHandler_Subscribe_InvalidPlan(t *testing.T) {
	handler := NewSubscriptionHandler(&MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "POST", "/subscriptions", SubscribeRequest{
		Plan:            "platinum",
		PaymentMethodID: "pm_123",
	}), testUser())
	w := httptest.NewRecorder()

	handler.Subscribe(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestSubscriptionHandler_Subscribe_PaymentRejected(t *testing.T) {
	mock := &MockSubscriptionService{
		SubscribeFunc: func(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error) {
			return nil, models.ErrBadRequest
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "POST", "/subscriptions", SubscribeRequest{
		Plan:            "basic",
		PaymentMethodID: "pm_bad",
	}), testUser())
	w := httptest.NewRecorder()

	handler.Subscribe(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestSubscriptionHandler_Cancel(t *testing.T) {
	var canceledFor string
	mock := &MockSubscriptionService{
		CancelFunc: func(ctx context.Context, userID string) error {
			canceledFor = userID
			return nil
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "DELETE", "/subscriptions", nil), testUser())
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-1", canceledFor)
}

func TestSubscriptionHandler_Cancel_NoSubscription(t *testing.T) {
	mock := &MockSubscriptionService{
		CancelFunc: func(ctx context.Context, userID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "DELETE", "/subscriptions", nil), testUser())
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	AssertErrorResponse(t, w, 404, "not_found")
}

func TestSubscriptionHandler_ListCards(t *testing.T) {
	mock := &MockSubscriptionService{
		ListCardsFunc: func(ctx context.Context, userID string) ([]*models.Card, error) {
			return []*models.Card{
				{ID: "card-1", Last4: "4242", Brand: "visa", ExpMonth: 12, ExpYear: 2028, Status: "active"},
			}, nil
		},
	}
	handler := NewSubscriptionHandler(mock)

	req := WithUserContext(NewTestRequest(t, "GET", "/cards", nil), testUser())
	w := httptest.NewRecorder()

	handler.ListCards(w, req)

	var resp struct {
		Cards []CardResponse `json:"cards"`
	}
	AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Cards, 1)
	assert.Equal(t, "4242", resp.Cards[0].Last4)
}

func TestSubscriptionHandler_Unauthenticated(t *testing.T) {
	handler := NewSubscriptionHandler(&MockSubscriptionService{})

	req := NewTestRequest(t, "DELETE", "/subscriptions", nil)
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	AssertErrorResponse(t, w, 401, "unauthorized")
}
