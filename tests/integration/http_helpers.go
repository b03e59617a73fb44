package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/handlers"
	"github.com/payward/payward/internal/middleware"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/pdf"
	"github.com/payward/payward/internal/repositories"
	"github.com/payward/payward/internal/routes"
	"github.com/payward/payward/internal/services"
	pkghttp "github.com/payward/payward/pkg/http"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// SentCode is one captured verification or reset email.
type SentCode struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

// MockEmailService captures one-time codes for test assertions instead of
// sending real mail.
type MockEmailService struct {
	mu    sync.Mutex
	Codes []SentCode
}

func (m *MockEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	return m.record(email, code, expiresAt)
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	return m.record(email, code, expiresAt)
}

func (m *MockEmailService) record(email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Codes = append(m.Codes, SentCode{To: email, Code: code, ExpiresAt: expiresAt})
	return nil
}

// LastCode returns the most recently captured code, or nil.
func (m *MockEmailService) LastCode() *SentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Codes) == 0 {
		return nil
	}
	return &m.Codes[len(m.Codes)-1]
}

// FakeBillingProvider is an in-memory stand-in for the payment processor.
// Every charge succeeds unless DeclineCharges is set.
type FakeBillingProvider struct {
	mu             sync.Mutex
	DeclineCharges bool
	customers      map[string]string // user ID -> customer ID
	canceled       []string
}

func NewFakeBillingProvider() *FakeBillingProvider {
	return &FakeBillingProvider{customers: make(map[string]string)}
}

func (p *FakeBillingProvider) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.BillingCustomerID != "" {
		return user.BillingCustomerID, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.customers[user.ID]; ok {
		return id, nil
	}
	id := "cus_" + uuid.New().String()[:8]
	p.customers[user.ID] = id
	return id, nil
}

func (p *FakeBillingProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return nil
}

func (p *FakeBillingProvider) CreateSubscription(ctx context.Context, customerID, priceID, userID string) (*billing.Subscription, error) {
	return &billing.Subscription{
		ID:        "sub_" + uuid.New().String()[:8],
		PeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	}, nil
}

func (p *FakeBillingProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, subscriptionID)
	return nil
}

func (p *FakeBillingProvider) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return []models.Plan{
		{ID: "price_basic", Name: "Basic", Amount: 9.99, Currency: "usd", Interval: "month"},
		{ID: "price_pro", Name: "Pro", Amount: 19.99, Currency: "usd", Interval: "month"},
	}, nil
}

func (p *FakeBillingProvider) ChargeDeposit(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string) (*billing.Charge, error) {
	if p.DeclineCharges {
		return &billing.Charge{
			ID:            "pi_" + uuid.New().String()[:8],
			AmountCents:   amountCents,
			Currency:      currency,
			Succeeded:     false,
			FailureReason: "card_declined",
		}, nil
	}
	return &billing.Charge{
		ID:          "pi_" + uuid.New().String()[:8],
		AmountCents: amountCents,
		Currency:    currency,
		Succeeded:   true,
	}, nil
}

func (p *FakeBillingProvider) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	if signature != "test-signature" {
		return nil, billing.ErrBadSignature
	}
	var event billing.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrProvider, err)
	}
	return &event, nil
}

// TestServer wires the full HTTP stack against a real database, with email
// and billing faked.
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Email   *MockEmailService
	Billing *FakeBillingProvider
}

// NewTestServer builds the production router with test doubles at the
// process boundary.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger)

	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	cardRepo := repositories.NewCardRepository(db)

	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", time.Hour)
	otpManager := auth.NewOTPManager("payward-test", 10*time.Minute)
	mockEmail := &MockEmailService{}
	fakeBilling := NewFakeBillingProvider()

	throttleService := services.NewThrottleService(attemptRepo, userRepo, services.ThrottleConfig{
		DeviceMaxAttempts:   10,
		DeviceBlockDuration: 30 * time.Minute,
		AccountMaxAttempts:  20,
		AccountLockDuration: 60 * time.Minute,
	}, logger)
	authService := services.NewAuthService(userRepo, throttleService, tokenManager, otpManager,
		mockEmail, logger, auditLogger, 10*time.Minute)
	userService := services.NewUserService(userRepo, logger)
	planPrices := map[string]string{"basic": "price_basic", "pro": "price_pro", "enterprise": "price_enterprise"}
	subscriptionService := services.NewSubscriptionService(userRepo, transactionRepo, cardRepo,
		fakeBilling, planPrices, logger, auditLogger)
	transactionService := services.NewTransactionService(userRepo, transactionRepo, db,
		fakeBilling, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, attemptRepo, transactionRepo, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{}
	apiHandlers := routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, ipConfig),
		User:         handlers.NewUserHandler(userService),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService),
		Transaction:  handlers.NewTransactionHandler(transactionService, pdf.NewDocumentGenerator("Payward")),
		Webhook:      handlers.NewWebhookHandler(subscriptionService),
		Admin:        handlers.NewAdminHandler(adminService, userService, subscriptionService),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: "test"}))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, apiHandlers, tokenManager, userRepo)

	return &TestServer{
		Server:  httptest.NewServer(r),
		DB:      db,
		Email:   mockEmail,
		Billing: fakeBilling,
	}
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token.
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// ParseJSONResponse parses the response body into target and closes it.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractAccessToken pulls the access token from a login response.
func ExtractAccessToken(resp *http.Response) (string, error) {
	var authResp map[string]interface{}
	if err := ParseJSONResponse(resp, &authResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	token, _ := authResp["access_token"].(string)
	return token, nil
}
