package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/pdf"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// WalletUserRepository covers wallet balance movements on the user record.
type WalletUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetBillingCustomer(ctx context.Context, id, customerID string) error
	CreditWallet(ctx context.Context, id string, amountCents int64) (int64, error)
	TransferWallet(ctx context.Context, tx pgx.Tx, senderID, recipientID string, amountCents int64) (int64, error)
}

// LedgerRepository is the transaction ledger storage contract.
type LedgerRepository interface {
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	CreateInTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]*models.Transaction, error)
}

// TxRunner runs a function inside one database transaction. Implemented by
// database.DB.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// TransactionService handles wallet deposits, transfers, and statements.
// Amounts are cents throughout; debit ledger legs are stored negative.
type TransactionService struct {
	users       WalletUserRepository
	ledger      LedgerRepository
	runner      TxRunner
	provider    billing.Provider
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewTransactionService(users WalletUserRepository, ledger LedgerRepository, runner TxRunner, provider billing.Provider, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TransactionService {
	return &TransactionService{
		users:       users,
		ledger:      ledger,
		runner:      runner,
		provider:    provider,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Deposit charges the user's payment method through the billing provider and
// credits the wallet on success. Failed charges are recorded in the ledger
// with the provider's reason.
func (s *TransactionService) Deposit(ctx context.Context, userID string, amountCents int64, paymentMethodID string) (*models.Transaction, error) {
	if amountCents <= 0 {
		return nil, models.ErrBadRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.provider.EnsureCustomer(ctx, user)
	if err != nil {
		s.logger.Error("failed to ensure billing customer", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.BillingCustomerID == "" {
		if err := s.users.SetBillingCustomer(ctx, userID, customerID); err != nil {
			return nil, err
		}
	}

	charge, err := s.provider.ChargeDeposit(ctx, customerID, paymentMethodID, amountCents, user.Currency)
	if err != nil {
		s.logger.Error("deposit charge failed", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !charge.Succeeded {
		failed, recordErr := s.ledger.Create(ctx, &models.Transaction{
			UserID:        userID,
			Type:          models.TransactionDeposit,
			Status:        models.TransactionFailed,
			AmountCents:   amountCents,
			Currency:      user.Currency,
			Description:   "wallet deposit",
			ProviderRef:   charge.ID,
			FailureReason: &charge.FailureReason,
		})
		if recordErr != nil {
			return nil, recordErr
		}
		s.logger.Warn("deposit declined",
			slog.String("user_id", userID),
			slog.String("reason", charge.FailureReason))
		return failed, models.ErrBadRequest
	}

	if _, err := s.users.CreditWallet(ctx, userID, amountCents); err != nil {
		s.logger.Error("failed to credit wallet after charge",
			slog.String("user_id", userID),
			slog.String("charge_id", charge.ID),
			slog.Any("error", err))
		return nil, err
	}

	txn, err := s.ledger.Create(ctx, &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionDeposit,
		Status:      models.TransactionSucceeded,
		AmountCents: amountCents,
		Currency:    user.Currency,
		Description: "wallet deposit",
		ProviderRef: charge.ID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet deposit",
		slog.String("user_id", userID),
		slog.Int64("amount_cents", amountCents))
	s.auditLogger.LogAccountAction("wallet_deposit", userID, "", nil)
	return txn, nil
}

// Transfer moves funds between wallets. The debit, credit, and both ledger
// legs commit in one database transaction; an insufficient balance rolls the
// whole thing back.
func (s *TransactionService) Transfer(ctx context.Context, senderID, recipientEmail string, amountCents int64, description string) (*models.Transaction, error) {
	if amountCents <= 0 {
		return nil, models.ErrBadRequest
	}

	recipient, err := s.users.GetByEmail(ctx, recipientEmail)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, models.ErrBadRequest
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	var debitLeg *models.Transaction
	err = s.runner.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := s.users.TransferWallet(ctx, tx, senderID, recipient.ID, amountCents); err != nil {
			return err
		}

		debitLeg, err = s.ledger.CreateInTx(ctx, tx, &models.Transaction{
			UserID:      senderID,
			Type:        models.TransactionTransfer,
			Status:      models.TransactionSucceeded,
			AmountCents: -amountCents,
			Currency:    sender.Currency,
			Description: description,
			RecipientID: &recipient.ID,
		})
		if err != nil {
			return err
		}

		_, err = s.ledger.CreateInTx(ctx, tx, &models.Transaction{
			UserID:      recipient.ID,
			Type:        models.TransactionTransfer,
			Status:      models.TransactionSucceeded,
			AmountCents: amountCents,
			Currency:    recipient.Currency,
			Description: description,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			s.logger.Info("transfer rejected: insufficient funds", slog.String("user_id", senderID))
			return nil, models.ErrInsufficientFunds
		}
		s.logger.Error("transfer failed", slog.String("user_id", senderID), slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("wallet transfer",
		slog.String("from", senderID),
		slog.String("to", recipient.ID),
		slog.Int64("amount_cents", amountCents))
	s.auditLogger.LogAccountAction("wallet_transfer", senderID, "", map[string]string{"recipient": recipient.ID})
	return debitLeg, nil
}

// History returns a page of the user's ledger, newest first.
func (s *TransactionService) History(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListByUser(ctx, userID, limit, offset)
}

// Statement gathers everything a rendered PDF statement needs for the period.
func (s *TransactionService) Statement(ctx context.Context, userID string, from, to time.Time) (*pdf.StatementData, error) {
	if !to.After(from) {
		return nil, models.ErrBadRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	txns, err := s.ledger.ListByUserBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	return &pdf.StatementData{
		UserName:     user.Name,
		UserEmail:    user.Email,
		From:         from,
		To:           to,
		Transactions: txns,
		Currency:     user.Currency,
	}, nil
}
