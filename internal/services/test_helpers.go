package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/models"
)

// MockUserRepository implements the user repository interfaces for testing
type MockUserRepository struct {
	GetByIDFunc                        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc                     func(ctx context.Context, email string) (*models.User, error)
	GetByBillingCustomerFunc           func(ctx context.Context, customerID string) (*models.User, error)
	GetByCardholderFunc                func(ctx context.Context, cardholderID string) (*models.User, error)
	ListFunc                           func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc                         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfileFunc                  func(ctx context.Context, id, name, role string) (*models.User, error)
	DeleteFunc                         func(ctx context.Context, id string) error
	IncrementLoginAttemptsFunc         func(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error)
	LockAccountFunc                    func(ctx context.Context, id string, until time.Time) error
	ResetSecurityStateFunc             func(ctx context.Context, id string) error
	MarkVerifiedFunc                   func(ctx context.Context, id string) error
	SetOTPSecretFunc                   func(ctx context.Context, id, secret string, expiresAt time.Time) error
	SetResetSecretFunc                 func(ctx context.Context, id, secret string, expiresAt time.Time) error
	UpdatePasswordFunc                 func(ctx context.Context, id, passwordHash string) error
	SetSubscriptionFunc                func(ctx context.Context, id, plan, subscriptionID string, endsAt *time.Time) error
	ClearSubscriptionFunc              func(ctx context.Context, id string) error
	ExtendSubscriptionByCustomerFunc   func(ctx context.Context, customerID string, endsAt time.Time) error
	ClearSubscriptionByProviderRefFunc func(ctx context.Context, subscriptionID string) error
	SetBillingCustomerFunc             func(ctx context.Context, id, customerID string) error
	CreditWalletFunc                   func(ctx context.Context, id string, amountCents int64) (int64, error)
	TransferWalletFunc                 func(ctx context.Context, tx pgx.Tx, senderID, recipientID string, amountCents int64) (int64, error)
	StatsFunc                          func(ctx context.Context) (*models.UserStats, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByBillingCustomer(ctx context.Context, customerID string) (*models.User, error) {
	if m.GetByBillingCustomerFunc != nil {
		return m.GetByBillingCustomerFunc(ctx, customerID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByCardholder(ctx context.Context, cardholderID string) (*models.User, error) {
	if m.GetByCardholderFunc != nil {
		return m.GetByCardholderFunc(ctx, cardholderID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id, name, role string) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, name, role)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) IncrementLoginAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error) {
	if m.IncrementLoginAttemptsFunc != nil {
		return m.IncrementLoginAttemptsFunc(ctx, id, threshold, lockFor)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) LockAccount(ctx context.Context, id string, until time.Time) error {
	if m.LockAccountFunc != nil {
		return m.LockAccountFunc(ctx, id, until)
	}
	return nil
}

func (m *MockUserRepository) ResetSecurityState(ctx context.Context, id string) error {
	if m.ResetSecurityStateFunc != nil {
		return m.ResetSecurityStateFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) SetOTPSecret(ctx context.Context, id, secret string, expiresAt time.Time) error {
	if m.SetOTPSecretFunc != nil {
		return m.SetOTPSecretFunc(ctx, id, secret, expiresAt)
	}
	return nil
}

func (m *MockUserRepository) SetResetSecret(ctx context.Context, id, secret string, expiresAt time.Time) error {
	if m.SetResetSecretFunc != nil {
		return m.SetResetSecretFunc(ctx, id, secret, expiresAt)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetSubscription(ctx context.Context, id, plan, subscriptionID string, endsAt *time.Time) error {
	if m.SetSubscriptionFunc != nil {
		return m.SetSubscriptionFunc(ctx, id, plan, subscriptionID, endsAt)
	}
	return nil
}

func (m *MockUserRepository) ClearSubscription(ctx context.Context, id string) error {
	if m.ClearSubscriptionFunc != nil {
		return m.ClearSubscriptionFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ExtendSubscriptionByCustomer(ctx context.Context, customerID string, endsAt time.Time) error {
	if m.ExtendSubscriptionByCustomerFunc != nil {
		return m.ExtendSubscriptionByCustomerFunc(ctx, customerID, endsAt)
	}
	return nil
}

func (m *MockUserRepository) ClearSubscriptionByProviderRef(ctx context.Context, subscriptionID string) error {
	if m.ClearSubscriptionByProviderRefFunc != nil {
		return m.ClearSubscriptionByProviderRefFunc(ctx, subscriptionID)
	}
	return nil
}

func (m *MockUserRepository) SetBillingCustomer(ctx context.Context, id, customerID string) error {
	if m.SetBillingCustomerFunc != nil {
		return m.SetBillingCustomerFunc(ctx, id, customerID)
	}
	return nil
}

func (m *MockUserRepository) CreditWallet(ctx context.Context, id string, amountCents int64) (int64, error) {
	if m.CreditWalletFunc != nil {
		return m.CreditWalletFunc(ctx, id, amountCents)
	}
	return 0, models.ErrInternalServer
}

func (m *MockUserRepository) TransferWallet(ctx context.Context, tx pgx.Tx, senderID, recipientID string, amountCents int64) (int64, error) {
	if m.TransferWalletFunc != nil {
		return m.TransferWalletFunc(ctx, tx, senderID, recipientID, amountCents)
	}
	return 0, models.ErrInternalServer
}

func (m *MockUserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.UserStats{}, nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	FindFunc          func(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error)
	RecordFailureFunc func(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error)
	ClearFunc         func(ctx context.Context, ip, device, email string) error
	FindByEmailFunc   func(ctx context.Context, email string) ([]*models.LoginAttempt, error)
	DeleteByEmailFunc func(ctx context.Context, email string) error
	CountActiveFunc   func(ctx context.Context) (int64, int64, error)
}

func (m *MockLoginAttemptRepository) Find(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, ip, device, email)
	}
	return nil, nil
}

func (m *MockLoginAttemptRepository) RecordFailure(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, ip, device, email, threshold, blockFor)
	}
	return &models.LoginAttempt{
		IPAddress:         ip,
		DeviceFingerprint: device,
		Email:             email,
		AttemptCount:      1,
		LastAttemptAt:     time.Now(),
	}, nil
}

func (m *MockLoginAttemptRepository) Clear(ctx context.Context, ip, device, email string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, ip, device, email)
	}
	return nil
}

func (m *MockLoginAttemptRepository) FindByEmail(ctx context.Context, email string) ([]*models.LoginAttempt, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return []*models.LoginAttempt{}, nil
}

func (m *MockLoginAttemptRepository) DeleteByEmail(ctx context.Context, email string) error {
	if m.DeleteByEmailFunc != nil {
		return m.DeleteByEmailFunc(ctx, email)
	}
	return nil
}

func (m *MockLoginAttemptRepository) CountActive(ctx context.Context) (int64, int64, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, 0, nil
}

// MockThrottleGate implements ThrottleGate for testing
type MockThrottleGate struct {
	CheckAdmissionFunc   func(ctx context.Context, ip, device, email string) error
	RecordFailureFunc    func(ctx context.Context, ip, device, email string, user *models.User) error
	CheckAccountLockFunc func(ctx context.Context, user *models.User) error
	ClearOnSuccessFunc   func(ctx context.Context, ip, device, email, userID string) error
}

func (m *MockThrottleGate) CheckAdmission(ctx context.Context, ip, device, email string) error {
	if m.CheckAdmissionFunc != nil {
		return m.CheckAdmissionFunc(ctx, ip, device, email)
	}
	return nil
}

func (m *MockThrottleGate) RecordFailure(ctx context.Context, ip, device, email string, user *models.User) error {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, ip, device, email, user)
	}
	return nil
}

func (m *MockThrottleGate) CheckAccountLock(ctx context.Context, user *models.User) error {
	if m.CheckAccountLockFunc != nil {
		return m.CheckAccountLockFunc(ctx, user)
	}
	return nil
}

func (m *MockThrottleGate) ClearOnSuccess(ctx context.Context, ip, device, email, userID string) error {
	if m.ClearOnSuccessFunc != nil {
		return m.ClearOnSuccessFunc(ctx, ip, device, email, userID)
	}
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendVerificationCodeFunc  func(ctx context.Context, email, code string, expiresAt time.Time) error
	SendPasswordResetCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
}

func (m *MockEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendPasswordResetCodeFunc != nil {
		return m.SendPasswordResetCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

// MockLedgerRepository implements the ledger interfaces for testing
type MockLedgerRepository struct {
	CreateFunc            func(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	CreateInTxFunc        func(ctx context.Context, tx pgx.Tx, txn *models.Transaction) (*models.Transaction, error)
	ListByUserFunc        func(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	ListByUserBetweenFunc func(ctx context.Context, userID string, start, end time.Time) ([]*models.Transaction, error)
	VolumeSinceFunc       func(ctx context.Context, since time.Time) (int64, int64, error)
}

func (m *MockLedgerRepository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, txn)
	}
	return txn, nil
}

func (m *MockLedgerRepository) CreateInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) (*models.Transaction, error) {
	if m.CreateInTxFunc != nil {
		return m.CreateInTxFunc(ctx, tx, txn)
	}
	return txn, nil
}

func (m *MockLedgerRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	return []*models.Transaction{}, nil
}

func (m *MockLedgerRepository) ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]*models.Transaction, error) {
	if m.ListByUserBetweenFunc != nil {
		return m.ListByUserBetweenFunc(ctx, userID, start, end)
	}
	return []*models.Transaction{}, nil
}

func (m *MockLedgerRepository) VolumeSince(ctx context.Context, since time.Time) (int64, int64, error) {
	if m.VolumeSinceFunc != nil {
		return m.VolumeSinceFunc(ctx, since)
	}
	return 0, 0, nil
}

// MockCardStore implements CardStore for testing
type MockCardStore struct {
	CreateFunc     func(ctx context.Context, card *models.Card) (*models.Card, error)
	ListByUserFunc func(ctx context.Context, userID string) ([]*models.Card, error)
}

func (m *MockCardStore) Create(ctx context.Context, card *models.Card) (*models.Card, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, card)
	}
	return card, nil
}

func (m *MockCardStore) ListByUser(ctx context.Context, userID string) ([]*models.Card, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return []*models.Card{}, nil
}

// MockBillingProvider implements billing.Provider for testing
type MockBillingProvider struct {
	EnsureCustomerFunc      func(ctx context.Context, user *models.User) (string, error)
	AttachPaymentMethodFunc func(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscriptionFunc  func(ctx context.Context, customerID, priceID, userID string) (*billing.Subscription, error)
	CancelSubscriptionFunc  func(ctx context.Context, subscriptionID string) error
	ListPlansFunc           func(ctx context.Context) ([]models.Plan, error)
	ChargeDepositFunc       func(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string) (*billing.Charge, error)
	ParseWebhookFunc        func(payload []byte, signature string) (*billing.WebhookEvent, error)
}

func (m *MockBillingProvider) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if m.EnsureCustomerFunc != nil {
		return m.EnsureCustomerFunc(ctx, user)
	}
	return "cus_test", nil
}

func (m *MockBillingProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if m.AttachPaymentMethodFunc != nil {
		return m.AttachPaymentMethodFunc(ctx, customerID, paymentMethodID)
	}
	return nil
}

func (m *MockBillingProvider) CreateSubscription(ctx context.Context, customerID, priceID, userID string) (*billing.Subscription, error) {
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, customerID, priceID, userID)
	}
	return &billing.Subscription{ID: "sub_test", PeriodEnd: time.Now().Add(30 * 24 * time.Hour)}, nil
}

func (m *MockBillingProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, subscriptionID)
	}
	return nil
}

func (m *MockBillingProvider) ListPlans(ctx context.Context) ([]models.Plan, error) {
	if m.ListPlansFunc != nil {
		return m.ListPlansFunc(ctx)
	}
	return []models.Plan{}, nil
}

func (m *MockBillingProvider) ChargeDeposit(ctx context.Context, customerID, paymentMethodID string, amountCents int64, currency string) (*billing.Charge, error) {
	if m.ChargeDepositFunc != nil {
		return m.ChargeDepositFunc(ctx, customerID, paymentMethodID, amountCents, currency)
	}
	return &billing.Charge{ID: "pi_test", AmountCents: amountCents, Currency: currency, Succeeded: true}, nil
}

func (m *MockBillingProvider) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}
	return &billing.WebhookEvent{Type: billing.EventIgnored}, nil
}

// MockTxRunner implements TxRunner for testing. The default runs the
// function with a nil transaction handle.
type MockTxRunner struct {
	WithTransactionFunc func(ctx context.Context, fn func(pgx.Tx) error) error
}

func (m *MockTxRunner) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(nil)
}
