package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/payments"
	"github.com/seaside-charters/api/internal/platform/intentstore"
	"github.com/seaside-charters/api/internal/repositories"
)

const (
	// CheckoutMetadataType tags sessions created for yacht bookings.
	CheckoutMetadataType = "yacht-booking"
	metadataKeyType      = "type"
	metadataKeyData      = "data"

	defaultIntentTTL = 24 * time.Hour
)

// checkoutMetadata is JSON-encoded into the session's "data" metadata entry.
type checkoutMetadata struct {
	OrderID string `json:"redisOrderId"`
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Catalog        repositories.CatalogRepository
	Engine         *PricingEngine
	Intents        intentstore.Store
	Gateway        CheckoutGateway
	Leads          LeadCapturer
	Metrics        Metrics
	DeliveryCharge float64
	IntentTTL      time.Duration
	SuccessURL     string
	CancelURL      string
	Clock          func() time.Time
	OrderIDs       func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	pricer     bookingPricer
	intents    intentstore.Store
	gateway    CheckoutGateway
	leads      LeadCapturer
	metrics    Metrics
	effects    sideEffects
	intentTTL  time.Duration
	successURL string
	cancelURL  string
	now        func() time.Time
	orderIDs   func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	pricer, err := newBookingPricer(deps.Catalog, deps.Engine, deps.DeliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	if deps.Intents == nil {
		return nil, errors.New("checkout service: intent store is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	successURL := strings.TrimSpace(deps.SuccessURL)
	cancelURL := strings.TrimSpace(deps.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout service: success and cancel urls are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	orderIDs := deps.OrderIDs
	if orderIDs == nil {
		orderIDs = shortuuid.New
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ttl := deps.IntentTTL
	if ttl <= 0 {
		ttl = defaultIntentTTL
	}

	return &checkoutService{
		pricer:     pricer,
		intents:    deps.Intents,
		gateway:    deps.Gateway,
		leads:      deps.Leads,
		metrics:    metrics,
		effects:    sideEffects{logger: logger, metrics: metrics},
		intentTTL:  ttl,
		successURL: successURL,
		cancelURL:  cancelURL,
		now: func() time.Time {
			return clock().UTC()
		},
		orderIDs: orderIDs,
		logger:   logger,
	}, nil
}

// CreateCheckoutSession prices the booking, stores the intent under a fresh order id and opens a hosted
// checkout session referencing it. The intent is written before the gateway call so a failed session
// leaves only an unconsumed entry that expires on its own.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error) {
	req := normaliseBookingRequest(cmd.Booking)
	if err := validateBookingRequest(req); err != nil {
		s.metrics.CheckoutSession("invalid")
		return CheckoutSessionResult{}, err
	}
	if req.BookingType.IsInquiry() {
		s.metrics.CheckoutSession("invalid")
		return CheckoutSessionResult{}, validationErrorf("enquiries do not go through checkout")
	}
	if !req.TermsAccepted {
		s.metrics.CheckoutSession("invalid")
		return CheckoutSessionResult{}, validationErrorf("terms must be accepted")
	}
	feeMode, err := resolveFeeMode(cmd.FeeMode, req.BookingType)
	if err != nil {
		s.metrics.CheckoutSession("invalid")
		return CheckoutSessionResult{}, err
	}
	processingFee := feeMode == FeeModeProcessingFee

	priced, err := s.pricer.price(ctx, pricingRequest{
		YachtID:              req.YachtID,
		PriceTierID:          req.PriceTierID,
		BookingType:          req.BookingType,
		Start:                req.Start,
		End:                  req.End,
		Services:             req.AdditionalServices,
		IncludeProcessingFee: processingFee,
	})
	if err != nil {
		s.metrics.CheckoutSession(checkoutFailureResult(err))
		return CheckoutSessionResult{}, err
	}

	orderID := s.orderIDs()
	intent := bookingIntent(orderID, req, priced, processingFee, s.now())
	if err := s.intents.Put(ctx, orderID, intent, s.intentTTL); err != nil {
		s.logger(ctx, "checkout.intent_store_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		s.metrics.CheckoutSession("unavailable")
		return CheckoutSessionResult{}, fmt.Errorf("%w: store intent: %v", ErrUnavailable, err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, s.sessionRequest(orderID, req, priced))
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		s.metrics.CheckoutSession("gateway_error")
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	if s.leads != nil {
		s.effects.run(ctx, EffectCRMLead, map[string]any{"orderId": orderID}, func(ctx context.Context) error {
			return s.leads.CaptureLead(ctx, domain.Lead{
				Name:    req.CustomerName,
				Email:   req.CustomerEmail,
				Phone:   req.CustomerPhone,
				Source:  domain.LeadSourceCheckoutStarted,
				YachtID: req.YachtID,
				OrderID: orderID,
			})
		})
	}

	s.metrics.CheckoutSession("created")
	s.logger(ctx, "checkout.session_created", map[string]any{
		"orderId":    orderID,
		"sessionId":  session.ID,
		"yachtId":    req.YachtID,
		"totalPrice": priced.Breakdown.TotalPrice,
		"feeMode":    string(feeMode),
	})

	return CheckoutSessionResult{
		OrderID:     orderID,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
		Breakdown:   priced.Breakdown,
		Currency:    cityCurrency(priced.City),
	}, nil
}

func (s *checkoutService) sessionRequest(orderID string, req BookingRequest, priced pricedBooking) payments.CheckoutSessionRequest {
	data, _ := json.Marshal(checkoutMetadata{OrderID: orderID})
	currency := cityCurrency(priced.City)
	return payments.CheckoutSessionRequest{
		Currency:      strings.ToLower(currency),
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata: map[string]string{
			metadataKeyType: CheckoutMetadataType,
			metadataKeyData: string(data),
		},
		IdempotencyKey: "checkout-" + orderID,
		Items: []payments.CheckoutLineItem{{
			Name:        fmt.Sprintf("%s (%sft)", priced.Yacht.Name, formatLength(priced.Yacht.Length)),
			Description: lineItemDescription(req, priced),
			Quantity:    1,
			Amount:      priced.Breakdown.TotalMinorUnits(),
			Currency:    strings.ToLower(currency),
		}},
	}
}

// lineItemDescription summarises the booking and itemises the taxes for the hosted checkout page.
func lineItemDescription(req BookingRequest, priced pricedBooking) string {
	var b strings.Builder
	b.WriteString(bookingTypeLabel(req.BookingType))
	b.WriteString(" for ")
	b.WriteString(strconv.Itoa(req.Guests))
	if req.Guests == 1 {
		b.WriteString(" guest")
	} else {
		b.WriteString(" guests")
	}
	if date := req.LocalStartDate; date != "" {
		b.WriteString(" on ")
		b.WriteString(date)
		if req.LocalEndDate != "" && req.LocalEndDate != date {
			b.WriteString(" to ")
			b.WriteString(req.LocalEndDate)
		}
	}
	for _, tax := range priced.Breakdown.TaxBreakdown {
		fmt.Fprintf(&b, " | %s: %.2f", tax.Name, tax.Amount)
	}
	return b.String()
}

func formatLength(length float64) string {
	return strconv.FormatFloat(length, 'f', -1, 64)
}

func checkoutFailureResult(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
