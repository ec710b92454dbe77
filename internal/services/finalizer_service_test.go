package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/payments"
	"github.com/seaside-charters/api/internal/platform/intentstore"
	"github.com/seaside-charters/api/internal/repositories"
)

const validSignature = "t=1,v1=valid"

// jsonVerifier accepts payloads signed with validSignature and decodes them as payments.Event.
var jsonVerifier = stubVerifier{verifyFunc: func(payload []byte, signature string) (payments.Event, error) {
	if signature != validSignature {
		return payments.Event{}, fmt.Errorf("%w: bad signature", payments.ErrInvalidSignature)
	}
	var event payments.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return payments.Event{}, fmt.Errorf("%w: %v", payments.ErrInvalidPayload, err)
	}
	return event, nil
}}

type finalizerFixture struct {
	checkout  checkoutFixture
	service   FinalizerService
	customers *stubCustomers
	bookings  *stubBookings
	mailer    *stubMailer
	calendar  *stubCalendar
	publisher *stubPublisher
	metrics   *recordingMetrics
}

func newFinalizerFixture(t *testing.T) finalizerFixture {
	t.Helper()
	f := finalizerFixture{
		checkout:  newCheckoutFixture(t),
		customers: &stubCustomers{},
		bookings:  newStubBookings(),
		mailer:    &stubMailer{},
		calendar:  &stubCalendar{},
		publisher: &stubPublisher{},
		metrics:   &recordingMetrics{},
	}
	var seq int
	var mu sync.Mutex
	svc, err := NewFinalizerService(FinalizerServiceDeps{
		Verifier:       jsonVerifier,
		Intents:        f.checkout.intents,
		Catalog:        f.checkout.catalog,
		Customers:      f.customers,
		Bookings:       f.bookings,
		Engine:         mustEngine(3.5),
		Mailer:         f.mailer,
		Calendar:       f.calendar,
		Publisher:      f.publisher,
		Metrics:        f.metrics,
		DeliveryCharge: 50,
		Clock:          fixedClock,
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%04d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new finalizer service: %v", err)
	}
	f.service = svc
	return f
}

// startCheckout runs a checkout and returns the completed-session webhook payload for it.
func (f finalizerFixture) startCheckout(t *testing.T) (CheckoutSessionResult, []byte) {
	t.Helper()
	result, err := f.checkout.service.CreateCheckoutSession(context.Background(), CreateCheckoutSessionCommand{Booking: singleDayRequest()})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	req := f.checkout.gateway.requests[len(f.checkout.gateway.requests)-1]
	payload, _ := json.Marshal(payments.Event{
		ID:          "evt_1",
		Type:        payments.EventCheckoutSessionCompleted,
		SessionID:   result.SessionID,
		AmountTotal: req.Items[0].Amount,
		Currency:    "usd",
		Metadata:    req.Metadata,
	})
	return result, payload
}

func TestFinalizerConfirmsBookingFromStoredIntent(t *testing.T) {
	f := newFinalizerFixture(t)
	quote, payload := f.startCheckout(t)

	result, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ignored || result.Duplicate || result.OrderID != "ord-123" || result.BookingID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if f.bookings.count() != 1 {
		t.Fatalf("expected one booking, got %d", f.bookings.count())
	}
	booking := f.bookings.created[0]
	if booking.Status != domain.BookingStatusConfirmed || !booking.Prepaid || !booking.PaymentAccepted || booking.Inquiry {
		t.Fatalf("unexpected booking flags: %+v", booking)
	}
	if booking.TotalPrice != quote.Breakdown.TotalPrice || booking.BasePrice != 1000 || booking.YatrFee != 100 {
		t.Fatalf("expected recomputed amounts to match the quote, got %+v", booking)
	}
	if len(booking.TaxRuleIDs) != 2 || len(booking.Services) != 1 {
		t.Fatalf("expected tax and service links, got %+v", booking)
	}
	if booking.CustomerID != f.customers.created[0].ID {
		t.Fatalf("expected booking to reference created customer")
	}
	if booking.StaticDetails["yachtName"] != "Sea Breeze" {
		t.Fatalf("expected static details snapshot, got %+v", booking.StaticDetails)
	}

	if _, err := f.checkout.intents.Get(context.Background(), "ord-123"); !errors.Is(err, intentstore.ErrNotFound) {
		t.Fatalf("expected intent consumed, got %v", err)
	}
	if len(f.mailer.confirmations) != 1 || len(f.mailer.alerts) != 1 {
		t.Fatalf("expected confirmation and alert emails")
	}
	if f.calendar.calls != 1 || len(f.publisher.published) != 1 {
		t.Fatalf("expected calendar and event side effects")
	}
	if len(result.SideEffects) != 4 {
		t.Fatalf("expected four side effect results, got %+v", result.SideEffects)
	}
	for _, effect := range result.SideEffects {
		if !effect.OK() {
			t.Fatalf("unexpected side effect failure %+v", effect)
		}
	}
}

func TestFinalizerIsIdempotentAcrossRedeliveries(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)

	if _, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil {
		t.Fatalf("second delivery should be a no-op, got %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", second)
	}
	if f.bookings.count() != 1 {
		t.Fatalf("expected exactly one booking, got %d", f.bookings.count())
	}
	if len(f.mailer.confirmations) != 1 {
		t.Fatalf("expected no second confirmation email")
	}
}

func TestFinalizerConcurrentDeliveriesCreateOneBooking(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrBookingIntentNotFound) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if f.bookings.count() != 1 {
		t.Fatalf("expected exactly one booking, got %d", f.bookings.count())
	}
}

func TestFinalizerRejectsInvalidSignatureWithoutTouchingState(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)

	_, err := f.service.HandlePaymentEvent(context.Background(), payload, "t=1,v1=forged")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if _, err := f.checkout.intents.Get(context.Background(), "ord-123"); err != nil {
		t.Fatalf("expected intent untouched, got %v", err)
	}
	if f.bookings.count() != 0 || len(f.customers.created) != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestFinalizerIgnoresOtherEvents(t *testing.T) {
	f := newFinalizerFixture(t)

	payload, _ := json.Marshal(payments.Event{ID: "evt_2", Type: "payment_intent.created"})
	result, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil || !result.Ignored {
		t.Fatalf("expected ignored event, got %+v %v", result, err)
	}

	payload, _ = json.Marshal(payments.Event{
		ID:       "evt_3",
		Type:     payments.EventCheckoutSessionCompleted,
		Metadata: map[string]string{"type": "gift-card"},
	})
	result, err = f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil || !result.Ignored {
		t.Fatalf("expected foreign checkout to be ignored, got %+v %v", result, err)
	}
	if f.metrics.finalized[0] != "ignored" || f.metrics.finalized[1] != "ignored" {
		t.Fatalf("unexpected metrics %v", f.metrics.finalized)
	}
}

func TestFinalizerUnknownOrder(t *testing.T) {
	f := newFinalizerFixture(t)

	payload, _ := json.Marshal(payments.Event{
		ID:   "evt_4",
		Type: payments.EventCheckoutSessionCompleted,
		Metadata: map[string]string{
			"type": "yacht-booking",
			"data": `{"redisOrderId":"never-stored"}`,
		},
	})
	_, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if !errors.Is(err, ErrBookingIntentNotFound) {
		t.Fatalf("expected intent not found, got %v", err)
	}
}

func TestFinalizerMalformedMetadata(t *testing.T) {
	f := newFinalizerFixture(t)

	payload, _ := json.Marshal(payments.Event{
		ID:       "evt_5",
		Type:     payments.EventCheckoutSessionCompleted,
		Metadata: map[string]string{"type": "yacht-booking", "data": "{"},
	})
	if _, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFinalizerRestoresIntentWhenPersistenceFails(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)
	f.bookings.err = repositories.NewStoreError("bookings.create", repositories.KindUnavailable, errBoom)

	_, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if _, err := f.checkout.intents.Get(context.Background(), "ord-123"); err != nil {
		t.Fatalf("expected intent restored for retry, got %v", err)
	}
	if len(f.mailer.confirmations) != 0 {
		t.Fatalf("expected no notifications before the booking exists")
	}

	f.bookings.err = nil
	result, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil {
		t.Fatalf("retry should succeed, got %v", err)
	}
	if result.BookingID == "" || f.bookings.count() != 1 {
		t.Fatalf("expected booking after retry, got %+v", result)
	}
}

func TestFinalizerRetryAfterFailedBookingReusesCustomer(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)
	f.bookings.err = repositories.NewStoreError("bookings.create", repositories.KindUnavailable, errBoom)

	if _, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	f.bookings.err = nil
	if _, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature); err != nil {
		t.Fatalf("retry should succeed, got %v", err)
	}

	if f.customers.calls != 2 {
		t.Fatalf("expected the customer write on both attempts, got %d", f.customers.calls)
	}
	if len(f.customers.created) != 1 || f.bookings.count() != 1 {
		t.Fatalf("expected one customer and one booking, got %d customers and %d bookings",
			len(f.customers.created), f.bookings.count())
	}
	if f.bookings.created[0].CustomerID != f.customers.created[0].ID {
		t.Fatalf("expected booking to reference the first customer row %q, got %q",
			f.customers.created[0].ID, f.bookings.created[0].CustomerID)
	}
}

func TestFinalizerMissingIntentWithBookingStoreDown(t *testing.T) {
	f := newFinalizerFixture(t)
	f.bookings.lookupErr = repositories.NewStoreError("bookings.get_by_order", repositories.KindUnavailable, errBoom)

	payload, _ := json.Marshal(payments.Event{
		ID:   "evt_6",
		Type: payments.EventCheckoutSessionCompleted,
		Metadata: map[string]string{
			"type": "yacht-booking",
			"data": `{"redisOrderId":"ord-gone"}`,
		},
	})
	_, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrBookingIntentNotFound) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if got := f.metrics.finalized[len(f.metrics.finalized)-1]; got != "unavailable" {
		t.Fatalf("expected unavailable metric, got %q", got)
	}
}

// corruptIntents simulates a GETDEL whose payload no longer decodes.
type corruptIntents struct {
	intentstore.Store
	raw []byte
}

func (c corruptIntents) Take(_ context.Context, orderID string) (domain.BookingIntent, error) {
	return domain.BookingIntent{}, &intentstore.CorruptIntentError{OrderID: orderID, Raw: c.raw, Err: errBoom}
}

func TestFinalizerReportsCorruptIntent(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)

	var logged map[string]any
	svc, err := NewFinalizerService(FinalizerServiceDeps{
		Verifier:  jsonVerifier,
		Intents:   corruptIntents{Store: f.checkout.intents, raw: []byte(`{"orderId":`)},
		Catalog:   f.checkout.catalog,
		Customers: f.customers,
		Bookings:  f.bookings,
		Engine:    mustEngine(3.5),
		Metrics:   f.metrics,
		Clock:     fixedClock,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			if event == "finalizer.intent_corrupt" {
				logged = fields
			}
		},
	})
	if err != nil {
		t.Fatalf("new finalizer service: %v", err)
	}

	_, err = svc.HandlePaymentEvent(context.Background(), payload, validSignature)
	if !errors.Is(err, ErrIntentCorrupt) {
		t.Fatalf("expected corrupt intent error, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("corrupt intent must not be reported as an outage: %v", err)
	}
	if logged == nil || logged["payload"] != `{"orderId":` || logged["orderId"] != "ord-123" {
		t.Fatalf("expected raw payload to be logged, got %v", logged)
	}
	if got := f.metrics.finalized[len(f.metrics.finalized)-1]; got != "intent_corrupt" {
		t.Fatalf("expected intent_corrupt metric, got %q", got)
	}
	if f.bookings.count() != 0 || len(f.customers.created) != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestFinalizerSideEffectFailuresDoNotFailBooking(t *testing.T) {
	f := newFinalizerFixture(t)
	_, payload := f.startCheckout(t)
	f.mailer.err = errBoom
	f.calendar.panic = true
	f.publisher.err = errBoom

	result, err := f.service.HandlePaymentEvent(context.Background(), payload, validSignature)
	if err != nil {
		t.Fatalf("expected success despite side effect failures, got %v", err)
	}
	if f.bookings.count() != 1 {
		t.Fatalf("expected booking to be committed")
	}
	failed := map[string]bool{}
	for _, effect := range result.SideEffects {
		if effect.OK() {
			continue
		}
		var deliveryErr *NotificationDeliveryError
		if !errors.As(effect.Err, &deliveryErr) {
			t.Fatalf("expected NotificationDeliveryError, got %T", effect.Err)
		}
		failed[effect.Name] = true
	}
	for _, name := range []string{EffectConfirmationEmail, EffectInternalAlert, EffectCalendarEvent, EffectBookingEvent} {
		if !failed[name] {
			t.Fatalf("expected %s to be reported as failed, got %+v", name, result.SideEffects)
		}
	}
	if len(f.metrics.failures) != 4 {
		t.Fatalf("expected four failure metrics, got %v", f.metrics.failures)
	}
}

func TestIntentRoundTripReproducesBreakdown(t *testing.T) {
	f := newFinalizerFixture(t)
	quote, _ := f.startCheckout(t)

	intent, err := f.checkout.intents.Get(context.Background(), quote.OrderID)
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	encoded, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	var decoded domain.BookingIntent
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal intent: %v", err)
	}

	pricer, _ := newBookingPricer(f.checkout.catalog, mustEngine(3.5), 50)
	req := requestFromIntent(decoded)
	priced, err := pricer.price(context.Background(), pricingRequest{
		YachtID:              req.YachtID,
		PriceTierID:          req.PriceTierID,
		BookingType:          req.BookingType,
		Start:                req.Start,
		End:                  req.End,
		Services:             req.AdditionalServices,
		IncludeProcessingFee: decoded.ProcessingFeeRequired,
	})
	if err != nil {
		t.Fatalf("reprice: %v", err)
	}
	quoteJSON, _ := json.Marshal(quote.Breakdown)
	repricedJSON, _ := json.Marshal(priced.Breakdown)
	if string(quoteJSON) != string(repricedJSON) {
		t.Fatalf("expected identical breakdowns\nquote:    %s\nrepriced: %s", quoteJSON, repricedJSON)
	}
}

func TestBestEffortRecoversPanics(t *testing.T) {
	result := BestEffort(context.Background(), "explode", func(context.Context) error {
		panic("kaboom")
	})
	if result.OK() || result.Name != "explode" {
		t.Fatalf("expected captured failure, got %+v", result)
	}
	var deliveryErr *NotificationDeliveryError
	if !errors.As(result.Err, &deliveryErr) || deliveryErr.Effect != "explode" {
		t.Fatalf("expected NotificationDeliveryError, got %v", result.Err)
	}

	ok := BestEffort(context.Background(), "fine", func(context.Context) error { return nil })
	if !ok.OK() {
		t.Fatalf("expected success, got %+v", ok)
	}
}
