package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/pdf"
	"github.com/payward/payward/internal/services"
	pkghttp "github.com/payward/payward/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithUserContext attaches a user to the request context, bypassing the
// authentication middleware
func WithUserContext(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc              func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	RegisterFunc           func(ctx context.Context, email, password, name string) (*services.UserResponse, error)
	VerifyEmailFunc        func(ctx context.Context, email, code string) error
	ResendVerificationFunc func(ctx context.Context, email string) error
	ForgotPasswordFunc     func(ctx context.Context, email string) error
	ResetPasswordFunc      func(ctx context.Context, email, code, newPassword string) error
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*services.UserResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, email, code string) error {
	if m.VerifyEmailFunc == nil {
		return nil
	}
	return m.VerifyEmailFunc(ctx, email, code)
}

func (m *MockAuthService) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc == nil {
		return nil
	}
	return m.ResendVerificationFunc(ctx, email)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return nil
	}
	return m.ResetPasswordFunc(ctx, email, code, newPassword)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc   func(ctx context.Context, id string) (*models.User, error)
	UpdateProfileFunc func(ctx context.Context, id, name string) (*models.User, error)
	DeleteUserFunc    func(ctx context.Context, id string) error
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id, name string) (*models.User, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, id, name)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, id)
}

// MockSubscriptionService implements SubscriptionServiceInterface for testing
type MockSubscriptionService struct {
	ListPlansFunc func(ctx context.Context) ([]models.Plan, error)
	SubscribeFunc func(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error)
	CancelFunc    func(ctx context.Context, userID string) error
	ListCardsFunc func(ctx context.Context, userID string) ([]*models.Card, error)
}

func (m *MockSubscriptionService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	if m.ListPlansFunc == nil {
		return []models.Plan{}, nil
	}
	return m.ListPlansFunc(ctx)
}

func (m *MockSubscriptionService) Subscribe(ctx context.Context, userID, plan, paymentMethodID string) (*models.User, error) {
	if m.SubscribeFunc == nil {
		return nil, models.ErrConflict
	}
	return m.SubscribeFunc(ctx, userID, plan, paymentMethodID)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, userID string) error {
	if m.CancelFunc == nil {
		return nil
	}
	return m.CancelFunc(ctx, userID)
}

func (m *MockSubscriptionService) ListCards(ctx context.Context, userID string) ([]*models.Card, error) {
	if m.ListCardsFunc == nil {
		return []*models.Card{}, nil
	}
	return m.ListCardsFunc(ctx, userID)
}

// MockTransactionService implements TransactionServiceInterface for testing
type MockTransactionService struct {
	DepositFunc   func(ctx context.Context, userID string, amountCents int64, paymentMethodID string) (*models.Transaction, error)
	TransferFunc  func(ctx context.Context, senderID, recipientEmail string, amountCents int64, description string) (*models.Transaction, error)
	HistoryFunc   func(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	StatementFunc func(ctx context.Context, userID string, from, to time.Time) (*pdf.StatementData, error)
}

func (m *MockTransactionService) Deposit(ctx context.Context, userID string, amountCents int64, paymentMethodID string) (*models.Transaction, error) {
	if m.DepositFunc == nil {
		return nil, models.ErrBadRequest
	}
	return m.DepositFunc(ctx, userID, amountCents, paymentMethodID)
}

func (m *MockTransactionService) Transfer(ctx context.Context, senderID, recipientEmail string, amountCents int64, description string) (*models.Transaction, error) {
	if m.TransferFunc == nil {
		return nil, models.ErrBadRequest
	}
	return m.TransferFunc(ctx, senderID, recipientEmail, amountCents, description)
}

func (m *MockTransactionService) History(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	if m.HistoryFunc == nil {
		return []*models.Transaction{}, nil
	}
	return m.HistoryFunc(ctx, userID, limit, offset)
}

func (m *MockTransactionService) Statement(ctx context.Context, userID string, from, to time.Time) (*pdf.StatementData, error) {
	if m.StatementFunc == nil {
		return nil, models.ErrBadRequest
	}
	return m.StatementFunc(ctx, userID, from, to)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetDashboardStatsFunc func(ctx context.Context) (*services.DashboardStatsResponse, error)
	ListUsersFunc         func(ctx context.Context, limit, offset int) ([]*models.User, error)
	LoginAttemptsFunc     func(ctx context.Context, email string) ([]*models.LoginAttempt, error)
	UnlockAccountFunc     func(ctx context.Context, actorID, userID string) error
	DeleteUserFunc        func(ctx context.Context, actorID, userID string) error
}

func (m *MockAdminService) GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error) {
	if m.GetDashboardStatsFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.GetDashboardStatsFunc(ctx)
}

func (m *MockAdminService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockAdminService) LoginAttempts(ctx context.Context, email string) ([]*models.LoginAttempt, error) {
	if m.LoginAttemptsFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.LoginAttemptsFunc(ctx, email)
}

func (m *MockAdminService) UnlockAccount(ctx context.Context, actorID, userID string) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, actorID, userID)
}

func (m *MockAdminService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, actorID, userID)
}

// MockRoleChanger implements RoleChanger for testing
type MockRoleChanger struct {
	ChangeRoleFunc func(ctx context.Context, id, role string) (*models.User, error)
}

func (m *MockRoleChanger) ChangeRole(ctx context.Context, id, role string) (*models.User, error) {
	if m.ChangeRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChangeRoleFunc(ctx, id, role)
}

// MockWebhookProcessor implements WebhookProcessor for testing
type MockWebhookProcessor struct {
	HandleWebhookFunc func(ctx context.Context, payload []byte, signature string) error
}

func (m *MockWebhookProcessor) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if m.HandleWebhookFunc == nil {
		return nil
	}
	return m.HandleWebhookFunc(ctx, payload, signature)
}

// MockPDFGenerator implements pdf.Generator for testing
type MockPDFGenerator struct {
	StatementFunc func(w io.Writer, data pdf.StatementData) error
}

func (m *MockPDFGenerator) Statement(w io.Writer, data pdf.StatementData) error {
	if m.StatementFunc == nil {
		_, err := w.Write([]byte("%PDF-1.4\n"))
		return err
	}
	return m.StatementFunc(w, data)
}
