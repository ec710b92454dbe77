package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/payments"
	"github.com/seaside-charters/api/internal/platform/intentstore"
	"github.com/seaside-charters/api/internal/repositories"
)

// FinalizerServiceDeps wires the webhook-driven booking finalizer.
type FinalizerServiceDeps struct {
	Verifier  WebhookVerifier
	Intents   intentstore.Store
	Catalog   repositories.CatalogRepository
	Customers repositories.CustomerRepository
	Bookings  repositories.BookingRepository
	Engine    *PricingEngine
	Mailer    Mailer
	Calendar  CalendarSync
	Publisher BookingEventPublisher
	Metrics   Metrics
	// DeliveryCharge must match the value used at checkout for the recomputed total to agree.
	DeliveryCharge float64
	// IntentTTL bounds intents written back after a failed finalisation.
	IntentTTL   time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type finalizerService struct {
	verifier  WebhookVerifier
	intents   intentstore.Store
	pricer    bookingPricer
	customers repositories.CustomerRepository
	bookings  repositories.BookingRepository
	mailer    Mailer
	calendar  CalendarSync
	publisher BookingEventPublisher
	metrics   Metrics
	effects   sideEffects
	intentTTL time.Duration
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewFinalizerService constructs a FinalizerService validating required dependencies.
func NewFinalizerService(deps FinalizerServiceDeps) (FinalizerService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("finalizer service: webhook verifier is required")
	}
	if deps.Intents == nil {
		return nil, errors.New("finalizer service: intent store is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("finalizer service: customer repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("finalizer service: booking repository is required")
	}
	pricer, err := newBookingPricer(deps.Catalog, deps.Engine, deps.DeliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("finalizer service: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
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

	return &finalizerService{
		verifier:  deps.Verifier,
		intents:   deps.Intents,
		pricer:    pricer,
		customers: deps.Customers,
		bookings:  deps.Bookings,
		mailer:    deps.Mailer,
		calendar:  deps.Calendar,
		publisher: deps.Publisher,
		metrics:   metrics,
		effects:   sideEffects{logger: logger, metrics: metrics},
		intentTTL: ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// HandlePaymentEvent verifies a webhook and, for completed yacht checkouts, consumes the stored intent
// and persists the confirmed booking. Only failures before the booking is committed are returned;
// notification, calendar and event failures are reported in the result.
func (s *finalizerService) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (FinalizeResult, error) {
	event, err := s.verifier.VerifyEvent(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidPayload) {
			s.metrics.Finalized("invalid")
			return FinalizeResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		s.metrics.Finalized("invalid_signature")
		return FinalizeResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := FinalizeResult{EventID: event.ID, EventType: event.Type}
	if event.Type != payments.EventCheckoutSessionCompleted {
		s.logger(ctx, "finalizer.event_ignored", map[string]any{
			"eventId":   event.ID,
			"eventType": event.Type,
		})
		s.metrics.Finalized("ignored")
		result.Ignored = true
		return result, nil
	}
	if event.Metadata[metadataKeyType] != CheckoutMetadataType {
		s.logger(ctx, "finalizer.event_ignored", map[string]any{
			"eventId":   event.ID,
			"eventType": event.Type,
			"reason":    "metadata type",
		})
		s.metrics.Finalized("ignored")
		result.Ignored = true
		return result, nil
	}

	orderID, err := orderIDFromMetadata(event.Metadata)
	if err != nil {
		s.metrics.Finalized("invalid")
		return result, err
	}
	result.OrderID = orderID

	intent, err := s.intents.Take(ctx, orderID)
	if err != nil {
		var corrupt *intentstore.CorruptIntentError
		switch {
		case errors.Is(err, intentstore.ErrNotFound):
			return s.handleMissingIntent(ctx, result)
		case errors.As(err, &corrupt):
			s.logger(ctx, "finalizer.intent_corrupt", map[string]any{
				"orderId":   orderID,
				"eventId":   event.ID,
				"sessionId": event.SessionID,
				"error":     err.Error(),
				"payload":   string(corrupt.Raw),
			})
			s.metrics.Finalized("intent_corrupt")
			return result, fmt.Errorf("%w: order %q: %v", ErrIntentCorrupt, orderID, err)
		}
		s.metrics.Finalized("unavailable")
		return result, fmt.Errorf("%w: take intent: %v", ErrUnavailable, err)
	}

	notification, duplicate, err := s.persist(ctx, orderID, intent, event)
	if err != nil {
		s.restoreIntent(ctx, orderID, intent, err)
		s.metrics.Finalized(finalizeFailureResult(err))
		return result, err
	}
	if duplicate {
		s.metrics.Finalized("duplicate")
		result.Duplicate = true
		return result, nil
	}
	result.BookingID = notification.Booking.ID
	s.metrics.Finalized("confirmed")
	s.logger(ctx, "finalizer.booking_confirmed", map[string]any{
		"orderId":    orderID,
		"bookingId":  notification.Booking.ID,
		"totalPrice": notification.Booking.TotalPrice,
	})

	result.SideEffects = s.runSideEffects(ctx, notification)
	return result, nil
}

// persist reprices the stored intent and writes the customer and confirmed booking. duplicate is true
// when a booking already exists for the order. The customer is upserted by email, so a retry after a
// failed booking insert reuses the row written by the earlier attempt.
func (s *finalizerService) persist(ctx context.Context, orderID string, intent domain.BookingIntent, event payments.Event) (domain.BookingNotification, bool, error) {
	req := requestFromIntent(intent)
	priced, err := s.pricer.price(ctx, pricingRequest{
		YachtID:              req.YachtID,
		PriceTierID:          req.PriceTierID,
		BookingType:          req.BookingType,
		Start:                req.Start,
		End:                  req.End,
		Services:             req.AdditionalServices,
		IncludeProcessingFee: intent.ProcessingFeeRequired,
	})
	if err != nil {
		return domain.BookingNotification{}, false, err
	}
	if event.AmountTotal > 0 && event.AmountTotal != priced.Breakdown.TotalMinorUnits() {
		s.logger(ctx, "finalizer.amount_mismatch", map[string]any{
			"orderId":       orderID,
			"eventAmount":   event.AmountTotal,
			"computedMinor": priced.Breakdown.TotalMinorUnits(),
		})
	}

	now := s.now()
	customer, err := s.customers.UpsertCustomer(ctx, domain.Customer{
		ID:        customerIDPrefix + s.newID(),
		Name:      req.CustomerName,
		Email:     req.CustomerEmail,
		Phone:     req.CustomerPhone,
		CreatedAt: now,
	})
	if err != nil {
		return domain.BookingNotification{}, false, translatePersistError(err, "upsert customer")
	}

	details := intent.BookingDetails
	if len(details) == 0 {
		details = bookingDetails(nil, priced)
	}
	booking, err := s.bookings.CreateBooking(ctx, domain.Booking{
		ID:              bookingIDPrefix + s.newID(),
		OrderID:         orderID,
		YachtID:         priced.Yacht.ID,
		CustomerID:      customer.ID,
		PriceTierID:     priced.Tier.ID,
		Start:           req.Start,
		End:             req.End,
		Guests:          req.Guests,
		BasePrice:       priced.Breakdown.BasePrice,
		YatrFee:         priced.Breakdown.YatrFee,
		ProcessingFee:   priced.Breakdown.ProcessingFee,
		DeliveryCharge:  priced.Breakdown.DeliveryCharge,
		TotalPrice:      priced.Breakdown.TotalPrice,
		BookingType:     req.BookingType,
		Status:          domain.BookingStatusConfirmed,
		TermsAccepted:   req.TermsAccepted,
		PaymentAccepted: true,
		Inquiry:         false,
		Prepaid:         true,
		AffiliateID:     req.AffiliateID,
		StaticDetails:   details,
		TaxRuleIDs:      priced.Schedule.TaxRuleIDs(),
		Services:        bookingServiceLines(priced.Breakdown),
		CreatedAt:       now,
	})
	if err != nil {
		if repositories.IsConflict(err) {
			s.logger(ctx, "finalizer.duplicate_order", map[string]any{"orderId": orderID})
			return domain.BookingNotification{}, true, nil
		}
		return domain.BookingNotification{}, false, translatePersistError(err, "create booking")
	}
	return notificationFor(booking, customer, req, priced), false, nil
}

// handleMissingIntent distinguishes a redelivery of an already finalised order from an unknown one.
func (s *finalizerService) handleMissingIntent(ctx context.Context, result FinalizeResult) (FinalizeResult, error) {
	booking, err := s.bookings.GetBookingByOrderID(ctx, result.OrderID)
	switch {
	case err == nil:
		s.logger(ctx, "finalizer.already_finalized", map[string]any{
			"orderId":   result.OrderID,
			"bookingId": booking.ID,
		})
		s.metrics.Finalized("duplicate")
		result.BookingID = booking.ID
		result.Duplicate = true
		return result, nil
	case repositories.IsNotFound(err):
		s.metrics.Finalized("intent_not_found")
		return result, fmt.Errorf("%w: order %q", ErrBookingIntentNotFound, result.OrderID)
	default:
		s.metrics.Finalized("unavailable")
		return result, fmt.Errorf("%w: look up booking for order %q: %v", ErrUnavailable, result.OrderID, err)
	}
}

func (s *finalizerService) restoreIntent(ctx context.Context, orderID string, intent domain.BookingIntent, cause error) {
	err := s.intents.Restore(context.WithoutCancel(ctx), orderID, intent, s.intentTTL)
	fields := map[string]any{
		"orderId": orderID,
		"cause":   cause.Error(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "finalizer.intent_restore_failed", fields)
		return
	}
	s.logger(ctx, "finalizer.intent_restored", fields)
}

func (s *finalizerService) runSideEffects(ctx context.Context, notification domain.BookingNotification) []BestEffortResult {
	fields := map[string]any{
		"orderId":   notification.Booking.OrderID,
		"bookingId": notification.Booking.ID,
	}
	var results []BestEffortResult
	if s.mailer != nil {
		results = append(results,
			s.effects.run(ctx, EffectConfirmationEmail, fields, func(ctx context.Context) error {
				return s.mailer.SendBookingConfirmation(ctx, notification)
			}),
			s.effects.run(ctx, EffectInternalAlert, fields, func(ctx context.Context) error {
				return s.mailer.SendInternalAlert(ctx, notification)
			}),
		)
	}
	if s.calendar != nil {
		results = append(results, s.effects.run(ctx, EffectCalendarEvent, fields, func(ctx context.Context) error {
			return s.calendar.CreateBookingEvent(ctx, notification)
		}))
	}
	if s.publisher != nil {
		results = append(results, s.effects.run(ctx, EffectBookingEvent, fields, func(ctx context.Context) error {
			return s.publisher.PublishBookingConfirmed(ctx, notification)
		}))
	}
	return results
}

func orderIDFromMetadata(metadata map[string]string) (string, error) {
	raw := strings.TrimSpace(metadata[metadataKeyData])
	if raw == "" {
		return "", validationErrorf("checkout metadata is missing order data")
	}
	var data checkoutMetadata
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", validationErrorf("checkout metadata is malformed")
	}
	orderID := strings.TrimSpace(data.OrderID)
	if orderID == "" {
		return "", validationErrorf("checkout metadata is missing the order id")
	}
	return orderID, nil
}

func finalizeFailureResult(err error) string {
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
