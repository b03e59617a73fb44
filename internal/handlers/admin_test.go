package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/services"
)

func adminUser() *models.User {
	return &models.User{
		ID:    "admin-1",
		Email: "admin@example.com",
		Role:  models.RoleAdmin,
	}
}

func TestAdminHandler_Dashboard(t *testing.T) {
	mock := &MockAdminService{
		GetDashboardStatsFunc: func(ctx context.Context) (*services.DashboardStatsResponse, error) {
			return &services.DashboardStatsResponse{
				Users:           &models.UserStats{Total: 42, Locked: 3},
				OpenAttemptRows: 7,
				BlockedTuples:   2,
				GeneratedAt:     time.Now().UTC(),
			}, nil
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "GET", "/admin/dashboard", nil), adminUser())
	w := httptest.NewRecorder()

	handler.Dashboard(w, req)

	var resp services.DashboardStatsResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(42), resp.Users.Total)
	assert.Equal(t, int64(2), resp.BlockedTuples)
}

func TestAdminHandler_LoginAttempts_RequiresEmail(t *testing.T) {
	handler := NewAdminHandler(&MockAdminService{}, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "GET", "/admin/login-attempts", nil), adminUser())
	w := httptest.NewRecorder()

	handler.LoginAttempts(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestAdminHandler_LoginAttempts(t *testing.T) {
	blockedUntil := time.Now().Add(20 * time.Minute)
	mock := &MockAdminService{
		LoginAttemptsFunc: func(ctx context.Context, email string) ([]*models.LoginAttempt, error) {
			assert.Equal(t, "target@example.com", email)
			return []*models.LoginAttempt{
				{
					IPAddress:         "203.0.113.9",
					DeviceFingerprint: "abc123",
					AttemptCount:      10,
					LastAttemptAt:     time.Now(),
					BlockedUntil:      &blockedUntil,
				},
			}, nil
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "GET", "/admin/login-attempts?email=target@example.com", nil), adminUser())
	w := httptest.NewRecorder()

	handler.LoginAttempts(w, req)

	var resp []*LoginAttemptResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp, 1)
	assert.Equal(t, 10, resp[0].AttemptCount)
	assert.NotNil(t, resp[0].BlockedUntil)
}

func TestAdminHandler_UnlockAccount(t *testing.T) {
	var gotActor, gotUser string
	mock := &MockAdminService{
		UnlockAccountFunc: func(ctx context.Context, actorID, userID string) error {
			gotActor = actorID
			gotUser = userID
			return nil
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "POST", "/admin/users/user-9/unlock", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.UnlockAccount(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "admin-1", gotActor)
	assert.Equal(t, "user-9", gotUser)
}

func TestAdminHandler_UnlockAccount_UnknownUser(t *testing.T) {
	mock := &MockAdminService{
		UnlockAccountFunc: func(ctx context.Context, actorID, userID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "POST", "/admin/users/missing/unlock", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "missing"})
	w := httptest.NewRecorder()

	handler.UnlockAccount(w, req)

	AssertErrorResponse(t, w, 404, "not_found")
}

func TestAdminHandler_ChangeRole(t *testing.T) {
	mock := &MockRoleChanger{
		ChangeRoleFunc: func(ctx context.Context, id, role string) (*models.User, error) {
			assert.Equal(t, "user-9", id)
			assert.Equal(t, models.RoleDeveloper, role)
			user := testUser()
			user.ID = id
			user.Role = role
			return user, nil
		},
	}
	handler := NewAdminHandler(&MockAdminService{}, mock, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "PUT", "/admin/users/user-9/role", ChangeRoleRequest{Role: "developer"}), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.ChangeRole(w, req)

	var resp AdminUserResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.RoleDeveloper, resp.Role)
}

func TestAdminHandler_ChangeRole_InvalidRole(t *testing.T) {
	handler := NewAdminHandler(&MockAdminService{}, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "PUT", "/admin/users/user-9/role", ChangeRoleRequest{Role: "superuser"}), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.ChangeRole(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestAdminHandler_DeleteUser(t *testing.T) {
	var gotActor, gotUser string
	mock := &MockAdminService{
		DeleteUserFunc: func(ctx context.Context, actorID, userID string) error {
			gotActor = actorID
			gotUser = userID
			return nil
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "DELETE", "/admin/users/user-9", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.DeleteUser(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "admin-1", gotActor)
	assert.Equal(t, "user-9", gotUser)
}

func TestAdminHandler_DeleteUser_Self(t *testing.T) {
	called := false
	mock := &MockAdminService{
		DeleteUserFunc: func(ctx context.Context, actorID, userID string) error {
			called = true
			return nil
		},
	}
	handler := NewAdminHandler(mock, &MockRoleChanger{}, &MockSubscriptionService{})

	req := WithUserContext(NewTestRequest(t, "DELETE", "/admin/users/admin-1", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "admin-1"})
	w := httptest.NewRecorder()

	handler.DeleteUser(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
	assert.False(t, called)
}

func TestAdminHandler_CancelSubscription(t *testing.T) {
	var canceledFor string
	canceller := &MockSubscriptionService{
		CancelFunc: func(ctx context.Context, userID string) error {
			canceledFor = userID
			return nil
		},
	}
	handler := NewAdminHandler(&MockAdminService{}, &MockRoleChanger{}, canceller)

	req := WithUserContext(NewTestRequest(t, "DELETE", "/admin/users/user-9/subscription", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.CancelSubscription(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-9", canceledFor)
}

func TestAdminHandler_CancelSubscription_NoSubscription(t *testing.T) {
	canceller := &MockSubscriptionService{
		CancelFunc: func(ctx context.Context, userID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewAdminHandler(&MockAdminService{}, &MockRoleChanger{}, canceller)

	req := WithUserContext(NewTestRequest(t, "DELETE", "/admin/users/user-9/subscription", nil), adminUser())
	req = WithChiRouteContext(req, map[string]string{"userID": "user-9"})
	w := httptest.NewRecorder()

	handler.CancelSubscription(w, req)

	AssertErrorResponse(t, w, 404, "not_found")
}
