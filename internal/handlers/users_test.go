package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/payward/payward/internal/models"
)

func testUser() *models.User {
	plan := "pro"
	return &models.User{
		ID:                 "user-1",
		Email:              "user@example.com",
		Name:               "Test User",
		Role:               models.RoleUser,
		Verified:           true,
		Subscribed:         true,
		SubscriptionPlan:   &plan,
		WalletBalanceCents: 12500,
		Currency:           "USD",
		CreatedAt:          time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestUserHandler_Me(t *testing.T) {
	handler := NewUserHandler(&MockUserService{})

	req := WithUserContext(NewTestRequest(t, "GET", "/users/me", nil), testUser())
	w := httptest.NewRecorder()

	handler.Me(w, req)

	var resp ProfileResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user-1", resp.ID)
	assert.Equal(t, "user@example.com", resp.Email)
	assert.Equal(t, int64(12500), resp.WalletBalance)
	assert.Equal(t, "pro", *resp.SubscriptionPlan)
}

func TestUserHandler_Me_Unauthenticated(t *testing.T) {
	handler := NewUserHandler(&MockUserService{})

	req := NewTestRequest(t, "GET", "/users/me", nil)
	w := httptest.NewRecorder()

	handler.Me(w, req)

	AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestUserHandler_UpdateMe(t *testing.T) {
	mock := &MockUserService{
		UpdateProfileFunc: func(ctx context.Context, id, name string) (*models.User, error) {
			assert.Equal(t, "user-1", id)
			assert.Equal(t, "New Name", name)
			user := testUser()
			user.Name = name
			return user, nil
		},
	}
	handler := NewUserHandler(mock)

	req := WithUserContext(NewTestRequest(t, "PUT", "/users/me", UpdateProfileRequest{Name: "New Name"}), testUser())
	w := httptest.NewRecorder()

	handler.UpdateMe(w, req)

	var resp ProfileResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "New Name", resp.Name)
}

func TestUserHandler_UpdateMe_EmptyName(t *testing.T) {
	handler := NewUserHandler(&MockUserService{})

	req := WithUserContext(NewTestRequest(t, "PUT", "/users/me", UpdateProfileRequest{Name: ""}), testUser())
	w := httptest.NewRecorder()

	handler.UpdateMe(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestUserHandler_DeleteMe(t *testing.T) {
	deleted := ""
	mock := &MockUserService{
		DeleteUserFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	handler := NewUserHandler(mock)

	req := WithUserContext(NewTestRequest(t, "DELETE", "/users/me", nil), testUser())
	w := httptest.NewRecorder()

	handler.DeleteMe(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-1", deleted)
}
