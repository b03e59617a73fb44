package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	pkghttp "github.com/payward/payward/pkg/http"
)

// SubscriptionServiceInterface defines subscription lifecycle operations
type SubscriptionServiceInterface interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	Subscribe(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error)
	Cancel(ctx context.Context, userID string) error
	ListCards(ctx context.Context, userID string) ([]*models.Card, error)
}

// SubscriptionHandler handles subscription HTTP requests
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// SubscribeRequest represents the request body for starting a subscription
type SubscribeRequest struct {
	Plan            string `json:"plan" validate:"required,oneof=basic pro enterprise"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// CardResponse represents an issued card in HTTP responses
type CardResponse struct {
	ID       string `json:"id"`
	Last4    string `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Status   string `json:"status"`
}

// ListPlans returns the purchasable plans. Public: unauthenticated visitors
// compare prices before registering.
func (h *SubscriptionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// Subscribe starts a subscription for the authenticated user
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	updated, err := h.service.Subscribe(r.Context(), user.ID, req.Plan, req.PaymentMethodID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Already subscribed")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Payment method was rejected")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(updated))
}

// Cancel ends the authenticated user's subscription
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Cancel(r.Context(), user.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No active subscription")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCards returns the authenticated user's issued cards
func (h *SubscriptionHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	cards, err := h.service.ListCards(r.Context(), user.ID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]CardResponse, 0, len(cards))
	for _, card := range cards {
		resp = append(resp, CardResponse{
			ID:       card.ID,
			Last4:    card.Last4,
			Brand:    card.Brand,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
			Status:   card.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"cards": resp})
}
