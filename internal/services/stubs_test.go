package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/payments"
	"github.com/seaside-charters/api/internal/repositories"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type stubCatalog struct {
	yachts   map[string]domain.Yacht
	cities   map[string]domain.City
	tiers    map[string]domain.PriceTier
	services map[string]domain.AdditionalService
	err      error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		yachts: map[string]domain.Yacht{
			"yacht-1": {ID: "yacht-1", Name: "Sea Breeze", Length: 80, CityID: "city-1", OperatorID: "op-1"},
			"yacht-2": {ID: "yacht-2", Name: "Little Wave", Length: 65, CityID: "miami"},
		},
		cities: map[string]domain.City{
			"city-1": {
				ID:       "city-1",
				Name:     "Fort Lauderdale",
				Currency: "USD",
				TaxRules: []domain.TaxRule{
					{ID: "tax-1", Name: "Sales Tax", Value: 5, BookingType: domain.BookingTypeSingleDay},
					{ID: "tax-2", Name: "Tourism Tax", Value: 3, BookingType: domain.BookingTypeSingleDay},
					{ID: "tax-3", Name: "Resort Tax", Value: 2, BookingType: domain.BookingTypeMultiDay},
				},
				RegistrationFeeRules: []domain.RegistrationFeeRule{
					{ID: "fee-1", Type: domain.FeeTypeFlat, Value: 100, BookingType: domain.BookingTypeSingleDay},
					{ID: "fee-2", Type: domain.FeeTypePercentage, Value: 10, BookingType: domain.BookingTypeMultiDay},
				},
			},
			"miami": {
				ID:       "miami",
				Name:     "MIAMI",
				Currency: "USD",
				RegistrationFeeRules: []domain.RegistrationFeeRule{
					{ID: "fee-m", Type: domain.FeeTypeFlat, Value: 250, BookingType: domain.BookingTypeSingleDay},
				},
			},
		},
		tiers: map[string]domain.PriceTier{
			"tier-day": {
				ID: "tier-day", YachtID: "yacht-1", Amount: 1000,
				DurationType: domain.DurationTypeSingleDay,
				Duration:     domain.DurationDescriptor{Kind: domain.DurationFlat},
			},
			"tier-nightly": {
				ID: "tier-nightly", YachtID: "yacht-1", Amount: 1000,
				DurationType: domain.DurationTypeMultiDay, DurationName: "Nightly",
				Duration: domain.DurationDescriptor{Kind: domain.DurationNightly},
			},
			"tier-miami": {
				ID: "tier-miami", YachtID: "yacht-2", Amount: 800,
				DurationType: domain.DurationTypeSingleDay,
				Duration:     domain.DurationDescriptor{Kind: domain.DurationFlat},
			},
		},
		services: map[string]domain.AdditionalService{
			"svc-1": {ID: "svc-1", Name: "Jet Ski", Price: 50},
			"svc-2": {ID: "svc-2", Name: "Catering", Price: 120},
		},
	}
}

func notFound(op string) error {
	return repositories.NewStoreError(op, repositories.KindNotFound, nil)
}

func (c *stubCatalog) GetYacht(_ context.Context, id string) (domain.Yacht, error) {
	if c.err != nil {
		return domain.Yacht{}, c.err
	}
	yacht, ok := c.yachts[id]
	if !ok {
		return domain.Yacht{}, notFound("yacht")
	}
	return yacht, nil
}

func (c *stubCatalog) GetCity(_ context.Context, id string) (domain.City, error) {
	city, ok := c.cities[id]
	if !ok {
		return domain.City{}, notFound("city")
	}
	return city, nil
}

func (c *stubCatalog) GetPriceTier(_ context.Context, id string) (domain.PriceTier, error) {
	tier, ok := c.tiers[id]
	if !ok {
		return domain.PriceTier{}, notFound("tier")
	}
	return tier, nil
}

func (c *stubCatalog) GetAdditionalServices(_ context.Context, ids []string) ([]domain.AdditionalService, error) {
	var out []domain.AdditionalService
	for _, id := range ids {
		if svc, ok := c.services[id]; ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

// stubCustomers upserts by email the way the Postgres repository does. created holds one entry per
// distinct customer row.
type stubCustomers struct {
	mu      sync.Mutex
	created []domain.Customer
	calls   int
	err     error
}

func (s *stubCustomers) UpsertCustomer(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.Customer{}, s.err
	}
	for i, existing := range s.created {
		if existing.Email == customer.Email {
			existing.Name = customer.Name
			if customer.Phone != "" {
				existing.Phone = customer.Phone
			}
			s.created[i] = existing
			return existing, nil
		}
	}
	s.created = append(s.created, customer)
	return customer, nil
}

type stubBookings struct {
	mu        sync.Mutex
	byOrder   map[string]domain.Booking
	created   []domain.Booking
	err       error
	lookupErr error
}

func newStubBookings() *stubBookings {
	return &stubBookings{byOrder: map[string]domain.Booking{}}
}

func (s *stubBookings) CreateBooking(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Booking{}, s.err
	}
	if booking.OrderID != "" {
		if _, exists := s.byOrder[booking.OrderID]; exists {
			return domain.Booking{}, repositories.NewStoreError("bookings.create", repositories.KindConflict, nil)
		}
		s.byOrder[booking.OrderID] = booking
	}
	s.created = append(s.created, booking)
	return booking, nil
}

func (s *stubBookings) GetBookingByOrderID(_ context.Context, orderID string) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return domain.Booking{}, s.lookupErr
	}
	booking, ok := s.byOrder[orderID]
	if !ok {
		return domain.Booking{}, notFound("bookings.get_by_order")
	}
	return booking, nil
}

func (s *stubBookings) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type stubGateway struct {
	requests []payments.CheckoutSessionRequest
	err      error
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return payments.CheckoutSession{}, g.err
	}
	return payments.CheckoutSession{
		ID:          "cs_test_123",
		Provider:    "stripe",
		RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_123",
		ExpiresAt:   fixedNow.Add(time.Hour),
	}, nil
}

type stubVerifier struct {
	verifyFunc func(payload []byte, signature string) (payments.Event, error)
}

func (v stubVerifier) VerifyEvent(_ context.Context, payload []byte, signature string) (payments.Event, error) {
	return v.verifyFunc(payload, signature)
}

type stubMailer struct {
	mu            sync.Mutex
	confirmations []domain.BookingNotification
	alerts        []domain.BookingNotification
	inquiries     []domain.BookingNotification
	err           error
}

func (m *stubMailer) SendBookingConfirmation(_ context.Context, n domain.BookingNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, n)
	return m.err
}

func (m *stubMailer) SendInternalAlert(_ context.Context, n domain.BookingNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, n)
	return m.err
}

func (m *stubMailer) SendInquiryAcknowledgement(_ context.Context, n domain.BookingNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inquiries = append(m.inquiries, n)
	return m.err
}

type stubCalendar struct {
	calls int
	panic bool
}

func (c *stubCalendar) CreateBookingEvent(context.Context, domain.BookingNotification) error {
	c.calls++
	if c.panic {
		panic("calendar client exploded")
	}
	return nil
}

type stubLeads struct {
	leads []domain.Lead
	err   error
}

func (l *stubLeads) CaptureLead(_ context.Context, lead domain.Lead) error {
	l.leads = append(l.leads, lead)
	return l.err
}

type stubPublisher struct {
	published []domain.BookingNotification
	err       error
}

func (p *stubPublisher) PublishBookingConfirmed(_ context.Context, n domain.BookingNotification) error {
	p.published = append(p.published, n)
	return p.err
}

type recordingMetrics struct {
	mu        sync.Mutex
	checkouts []string
	finalized []string
	failures  []string
}

func (m *recordingMetrics) CheckoutSession(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, result)
}

func (m *recordingMetrics) Finalized(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, result)
}

func (m *recordingMetrics) SideEffectFailed(effect string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, effect)
}

func mustEngine(percent float64) *PricingEngine {
	engine, err := NewPricingEngine(PricingEngineConfig{ProcessingFeePercent: percent})
	if err != nil {
		panic(err)
	}
	return engine
}

var errBoom = errors.New("boom")

func singleDayRequest() BookingRequest {
	return BookingRequest{
		YachtID:            "yacht-1",
		PriceTierID:        "tier-day",
		CustomerName:       "Ana Torres",
		CustomerEmail:      "Ana@Example.com",
		CustomerPhone:      "+1 305 555 0100",
		Start:              time.Date(2026, 7, 4, 14, 0, 0, 0, time.UTC),
		End:                time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC),
		LocalStartDate:     "2026-07-04",
		LocalStartTime:     "10:00",
		LocalEndDate:       "2026-07-04",
		LocalEndTime:       "14:00",
		Guests:             6,
		BookingType:        domain.BookingTypeSingleDay,
		AdditionalServices: []domain.AdditionalServiceSelection{{ServiceID: "svc-1", Quantity: 1}},
		TermsAccepted:      true,
		PaymentAccepted:    true,
	}
}
