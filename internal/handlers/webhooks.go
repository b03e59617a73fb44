package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/payward/payward/internal/models"
	pkghttp "github.com/payward/payward/pkg/http"
)

// Provider webhook payloads are small; reject anything oversized before
// signature verification.
const maxWebhookBody = 1 << 16

// WebhookProcessor applies a verified billing provider event
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives billing provider callbacks
type WebhookHandler struct {
	processor WebhookProcessor
}

func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
	}
}

// HandleBilling verifies and applies one provider event. A 2xx tells the
// provider to stop retrying; processing failures return 5xx so the event is
// redelivered.
func (h *WebhookHandler) HandleBilling(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Unreadable payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		pkghttp.WriteUnauthorized(w, "Missing signature")
		return
	}

	if err := h.processor.HandleWebhook(r.Context(), payload, signature); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid signature")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Malformed event")
		default:
			pkghttp.WriteInternalError(w, "Processing failed")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}
