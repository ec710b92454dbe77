package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seaside-charters/api/internal/platform/httpx"
	"github.com/seaside-charters/api/internal/platform/requestctx"
	"github.com/seaside-charters/api/internal/services"
)

const (
	maxWebhookBody        = 64 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// PaymentWebhookHandlers receives payment provider notifications.
type PaymentWebhookHandlers struct {
	finalizer services.FinalizerService
}

// NewPaymentWebhookHandlers constructs the webhook handlers.
func NewPaymentWebhookHandlers(finalizer services.FinalizerService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{finalizer: finalizer}
}

// Routes registers webhook endpoints under the provided router.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	BookingID string `json:"bookingId,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (h *PaymentWebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.finalizer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		return
	}

	result, err := h.finalizer.HandlePaymentEvent(ctx, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		logger := requestctx.Logger(ctx).With(zap.String("event_id", result.EventID), zap.String("order_id", result.OrderID))
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			logger.Warn("webhook signature rejected", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrBookingIntentNotFound):
			logger.Warn("webhook order has no pending booking", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("intent_not_found", "no pending booking for order", http.StatusNotFound))
		case errors.Is(err, services.ErrValidation):
			logger.Warn("webhook payload rejected", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("invalid_event", err.Error(), http.StatusUnprocessableEntity))
		case errors.Is(err, services.ErrIntentCorrupt):
			logger.Error("webhook booking intent unreadable", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("intent_corrupt", "pending booking could not be read", http.StatusInternalServerError))
		case errors.Is(err, services.ErrUnavailable):
			logger.Error("webhook dependency unavailable", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "booking store temporarily unavailable", http.StatusServiceUnavailable))
		default:
			logger.Error("webhook processing failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Received:  true,
		EventID:   result.EventID,
		OrderID:   result.OrderID,
		BookingID: result.BookingID,
		Ignored:   result.Ignored,
		Duplicate: result.Duplicate,
	})
}
