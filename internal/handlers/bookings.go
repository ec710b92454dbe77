package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/platform/httpx"
	"github.com/seaside-charters/api/internal/platform/requestctx"
	"github.com/seaside-charters/api/internal/services"
)

// BookingHandlers exposes the public quote, checkout and enquiry endpoints.
type BookingHandlers struct {
	bookings  services.BookingService
	checkout  services.CheckoutService
	inquiries services.InquiryService

	checkoutMiddlewares []func(http.Handler) http.Handler
}

// BookingHandlersOption customises BookingHandlers.
type BookingHandlersOption func(*BookingHandlers)

// WithCheckoutMiddlewares wraps the checkout endpoint, typically with the idempotency middleware.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) BookingHandlersOption {
	return func(h *BookingHandlers) {
		h.checkoutMiddlewares = append(h.checkoutMiddlewares, mw...)
	}
}

// NewBookingHandlers constructs booking handlers.
func NewBookingHandlers(bookings services.BookingService, checkout services.CheckoutService, inquiries services.InquiryService, opts ...BookingHandlersOption) *BookingHandlers {
	h := &BookingHandlers{
		bookings:  bookings,
		checkout:  checkout,
		inquiries: inquiries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers booking endpoints under the provided router.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quote", h.quote)
	checkout := r.With()
	for _, mw := range h.checkoutMiddlewares {
		if mw != nil {
			checkout = checkout.With(mw)
		}
	}
	checkout.Post("/checkout", h.createCheckout)
	r.Post("/inquiries", h.submitInquiry)
}

type quoteResponse struct {
	Currency        string                `json:"currency"`
	TotalMinorUnits int64                 `json:"totalMinorUnits"`
	Breakdown       domain.PriceBreakdown `json:"breakdown"`
}

type checkoutResponse struct {
	OrderID     string                `json:"orderId"`
	SessionID   string                `json:"sessionId"`
	URL         string                `json:"url"`
	ExpiresAt   string                `json:"expiresAt,omitempty"`
	Currency    string                `json:"currency"`
	Breakdown   domain.PriceBreakdown `json:"breakdown"`
	FeeIncluded bool                  `json:"processingFeeIncluded"`
}

type inquiryResponse struct {
	BookingID     string                `json:"bookingId"`
	CustomerID    string                `json:"customerId"`
	Status        string                `json:"status"`
	Currency      string                `json:"currency"`
	Breakdown     domain.PriceBreakdown `json:"breakdown"`
	Notifications []sideEffectResponse  `json:"notifications,omitempty"`
}

type sideEffectResponse struct {
	Name      string `json:"name"`
	Delivered bool   `json:"delivered"`
}

func (h *BookingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	cmd, err := payload.quoteCommand()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.bookings.Quote(ctx, cmd)
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteResponse{
		Currency:        result.Currency,
		TotalMinorUnits: result.Breakdown.TotalMinorUnits(),
		Breakdown:       result.Breakdown,
	})
}

func (h *BookingHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	req, err := payload.bookingRequest()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		Booking: req,
		FeeMode: services.FeeMode(payload.FeeMode),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{
		OrderID:     session.OrderID,
		SessionID:   session.SessionID,
		URL:         session.RedirectURL,
		ExpiresAt:   formatTime(session.ExpiresAt),
		Currency:    session.Currency,
		Breakdown:   session.Breakdown,
		FeeIncluded: session.Breakdown.ProcessingFee > 0,
	})
}

func (h *BookingHandlers) submitInquiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inquiries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inquiry_unavailable", "enquiry service unavailable", http.StatusServiceUnavailable))
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	req, err := payload.bookingRequest()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.inquiries.SubmitInquiry(ctx, services.SubmitInquiryCommand{Booking: req})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	notifications := make([]sideEffectResponse, 0, len(result.SideEffects))
	for _, effect := range result.SideEffects {
		notifications = append(notifications, sideEffectResponse{Name: effect.Name, Delivered: effect.OK()})
	}
	writeJSONResponse(w, http.StatusCreated, inquiryResponse{
		BookingID:     result.BookingID,
		CustomerID:    result.CustomerID,
		Status:        string(domain.BookingStatusPending),
		Currency:      result.Currency,
		Breakdown:     result.Breakdown,
		Notifications: notifications,
	})
}

func (h *BookingHandlers) decode(w http.ResponseWriter, r *http.Request) (bookingPayload, bool) {
	payload, err := decodeBookingPayload(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
		return bookingPayload{}, false
	}
	return payload, true
}

func writeBookingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("booking request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("booking_error", "failed to process booking request", http.StatusInternalServerError))
	}
}
