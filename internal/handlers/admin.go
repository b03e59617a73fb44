package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/services"
	pkghttp "github.com/payward/payward/pkg/http"
)

// AdminServiceInterface defines the interface for the administrator surface
type AdminServiceInterface interface {
	GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	LoginAttempts(ctx context.Context, email string) ([]*models.LoginAttempt, error)
	UnlockAccount(ctx context.Context, actorID, userID string) error
	DeleteUser(ctx context.Context, actorID, userID string) error
}

// RoleChanger assigns roles to accounts
type RoleChanger interface {
	ChangeRole(ctx context.Context, id, role string) (*models.User, error)
}

// SubscriptionCanceller ends a user's subscription at the billing provider
type SubscriptionCanceller interface {
	Cancel(ctx context.Context, userID string) error
}

// AdminHandler handles administrator requests
type AdminHandler struct {
	service       AdminServiceInterface
	roles         RoleChanger
	subscriptions SubscriptionCanceller
}

func NewAdminHandler(service AdminServiceInterface, roles RoleChanger, subscriptions SubscriptionCanceller) *AdminHandler {
	return &AdminHandler{
		service:       service,
		roles:         roles,
		subscriptions: subscriptions,
	}
}

// AdminUserResponse includes the security state hidden from profile responses
type AdminUserResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Role             string     `json:"role"`
	Verified         bool       `json:"verified"`
	Subscribed       bool       `json:"subscribed"`
	SubscriptionPlan *string    `json:"subscription_plan,omitempty"`
	LoginAttempts    int        `json:"login_attempts"`
	AccountLocked    bool       `json:"account_locked"`
	LockUntil        *time.Time `json:"lock_until,omitempty"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toAdminUserResponse(user *models.User) *AdminUserResponse {
	return &AdminUserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		Verified:         user.Verified,
		Subscribed:       user.Subscribed,
		SubscriptionPlan: user.SubscriptionPlan,
		LoginAttempts:    user.LoginAttempts,
		AccountLocked:    user.AccountLocked,
		LockUntil:        user.LockUntil,
		LastLogin:        user.LastLogin,
		CreatedAt:        user.CreatedAt,
	}
}

// LoginAttemptResponse is one open throttle counter row
type LoginAttemptResponse struct {
	IPAddress         string     `json:"ip_address"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	AttemptCount      int        `json:"attempt_count"`
	LastAttemptAt     time.Time  `json:"last_attempt_at"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

// ChangeRoleRequest represents a role assignment request
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user developer admin"`
}

// Dashboard returns aggregate account, throttle, and ledger counts
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListUsers pages through all accounts
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list users")
		return
	}

	resp := make([]*AdminUserResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, toAdminUserResponse(user))
	}
	writeJSON(w, http.StatusOK, resp)
}

// LoginAttempts returns the open throttle counters naming an email
func (h *AdminHandler) LoginAttempts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	attempts, err := h.service.LoginAttempts(r.Context(), email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to load login attempts")
		return
	}

	resp := make([]*LoginAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp = append(resp, &LoginAttemptResponse{
			IPAddress:         attempt.IPAddress,
			DeviceFingerprint: attempt.DeviceFingerprint,
			AttemptCount:      attempt.AttemptCount,
			LastAttemptAt:     attempt.LastAttemptAt,
			BlockedUntil:      attempt.BlockedUntil,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnlockAccount clears the account lock and every attempt counter for a user
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	if err := h.service.UnlockAccount(r.Context(), actor.ID, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to unlock account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser removes an account and its throttle counters
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}
	if userID == actor.ID {
		pkghttp.WriteBadRequest(w, "Cannot delete your own account from the admin surface")
		return
	}

	if err := h.service.DeleteUser(r.Context(), actor.ID, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelSubscription force-cancels a user's subscription
func (h *AdminHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	if err := h.subscriptions.Cancel(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No active subscription")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to cancel subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole assigns a role to an account
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.roles.ChangeRole(r.Context(), userID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid role")
		default:
			pkghttp.WriteInternalError(w, "Failed to change role")
		}
		return
	}

	writeJSON(w, http.StatusOK, toAdminUserResponse(user))
}
