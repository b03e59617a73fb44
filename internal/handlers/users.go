package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	pkghttp "github.com/payward/payward/pkg/http"
)

// UserService defines the interface for user profile business logic
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// UserHandler handles the authenticated user's own profile
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// UpdateProfileRequest represents the request body for updating the profile
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// ProfileResponse represents the authenticated user's own record
type ProfileResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	Role             string  `json:"role"`
	Verified         bool    `json:"verified"`
	Subscribed       bool    `json:"subscribed"`
	SubscriptionPlan *string `json:"subscription_plan,omitempty"`
	WalletBalance    int64   `json:"wallet_balance_cents"`
	Currency         string  `json:"currency"`
	LastLogin        *string `json:"last_login,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func toProfileResponse(user *models.User) *ProfileResponse {
	resp := &ProfileResponse{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		Verified:         user.Verified,
		Subscribed:       user.Subscribed,
		SubscriptionPlan: user.SubscriptionPlan,
		WalletBalance:    user.WalletBalanceCents,
		Currency:         user.Currency,
		CreatedAt:        user.CreatedAt.Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		formatted := user.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &formatted
	}
	return resp
}

// Me returns the authenticated user's profile
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateMe updates the authenticated user's profile
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, req.Name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}

// DeleteMe removes the authenticated user's account
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.DeleteUser(r.Context(), user.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
