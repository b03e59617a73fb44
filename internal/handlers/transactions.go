package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/pdf"
	pkghttp "github.com/payward/payward/pkg/http"
)

// TransactionServiceInterface defines wallet operations
type TransactionServiceInterface interface {
	Deposit(ctx context.Context, userID string, amountCents int64, paymentMethodID string) (*models.Transaction, error)
	Transfer(ctx context.Context, senderID, recipientEmail string, amountCents int64, description string) (*models.Transaction, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	Statement(ctx context.Context, userID string, from, to time.Time) (*pdf.StatementData, error)
}

// TransactionHandler handles wallet HTTP requests
type TransactionHandler struct {
	service   TransactionServiceInterface
	generator pdf.Generator
}

func NewTransactionHandler(service TransactionServiceInterface, generator pdf.Generator) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		generator: generator,
	}
}

// DepositRequest represents the request body for funding the wallet
type DepositRequest struct {
	AmountCents     int64  `json:"amount_cents" validate:"required,gt=0"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// TransferRequest represents the request body for a wallet transfer
type TransferRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	Description    string `json:"description" validate:"omitempty,max=200"`
}

// TransactionResponse represents one ledger entry in HTTP responses
type TransactionResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	AmountCents   int64   `json:"amount_cents"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	ProcessedAt   string  `json:"processed_at"`
}

func toTransactionResponse(txn *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            txn.ID,
		Type:          txn.Type,
		Status:        txn.Status,
		AmountCents:   txn.AmountCents,
		Currency:      txn.Currency,
		Description:   txn.Description,
		FailureReason: txn.FailureReason,
		ProcessedAt:   txn.ProcessedAt.Format(time.RFC3339),
	}
}

// Deposit charges the supplied payment method and credits the wallet
func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	txn, err := h.service.Deposit(r.Context(), user.ID, req.AmountCents, req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) && txn != nil {
			// The charge was declined; return the recorded failure.
			writeJSON(w, http.StatusPaymentRequired, toTransactionResponse(txn))
			return
		}
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid deposit")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// Transfer moves funds to another account by email
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	txn, err := h.service.Transfer(r.Context(), user.ID, req.RecipientEmail, req.AmountCents, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientFunds):
			pkghttp.WriteError(w, http.StatusPaymentRequired, "insufficient_funds", "Wallet balance does not cover the transfer")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Recipient not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid transfer")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// History returns a page of the authenticated user's ledger
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.service.History(r.Context(), user.ID, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		resp = append(resp, toTransactionResponse(txn))
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// Statement renders the user's ledger for a period as a downloadable PDF.
// The period defaults to the last 30 days; from/to accept YYYY-MM-DD.
func (h *TransactionHandler) Statement(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid 'from' date, expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid 'to' date, expected YYYY-MM-DD")
			return
		}
		// Include the whole end day.
		to = parsed.AddDate(0, 0, 1)
	}

	data, err := h.service.Statement(r.Context(), user.ID, from, to)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid statement period")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	filename := fmt.Sprintf("statement_%s_%s.pdf", from.Format("20060102"), to.Format("20060102"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.generator.Statement(w, *data); err != nil {
		// Headers are already out; nothing sane to send past this point.
		return
	}
}
