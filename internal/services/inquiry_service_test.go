package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

func newInquiryService(t *testing.T, mailer *stubMailer, leads *stubLeads, customers *stubCustomers, bookings *stubBookings) InquiryService {
	t.Helper()
	deps := InquiryServiceDeps{
		Catalog:        newStubCatalog(),
		Customers:      customers,
		Bookings:       bookings,
		Engine:         mustEngine(3.5),
		Mailer:         mailer,
		DeliveryCharge: 50,
		Clock:          fixedClock,
		IDGenerator:    func() string { return "01J0000000000000000000TEST" },
	}
	if leads != nil {
		deps.Leads = leads
	}
	svc, err := NewInquiryService(deps)
	if err != nil {
		t.Fatalf("new inquiry service: %v", err)
	}
	return svc
}

func multiDayEnquiry() BookingRequest {
	req := singleDayRequest()
	req.PriceTierID = "tier-nightly"
	req.BookingType = domain.BookingTypeMultiDayEnquiry
	req.Start = time.Date(2026, 7, 10, 15, 0, 0, 0, time.UTC)
	req.End = req.Start.Add(3 * 24 * time.Hour)
	req.AdditionalServices = nil
	req.TermsAccepted = false
	return req
}

func TestInquiryServiceCreatesPendingBooking(t *testing.T) {
	mailer := &stubMailer{}
	leads := &stubLeads{}
	customers := &stubCustomers{}
	bookings := newStubBookings()
	svc := newInquiryService(t, mailer, leads, customers, bookings)

	result, err := svc.SubmitInquiry(context.Background(), SubmitInquiryCommand{Booking: multiDayEnquiry()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BookingID != "bkg_01J0000000000000000000TEST" || result.CustomerID != "cus_01J0000000000000000000TEST" {
		t.Fatalf("unexpected ids: %+v", result)
	}
	// 3 nights x 1000 + 10% registration fee + 2% resort tax, no processing fee.
	if result.Breakdown.BasePrice != 3000 || result.Breakdown.YatrFee != 300 || result.Breakdown.TaxTotal != 60 {
		t.Fatalf("unexpected breakdown: %+v", result.Breakdown)
	}
	if result.Breakdown.ProcessingFee != 0 || result.Breakdown.TotalPrice != 3360 {
		t.Fatalf("expected enquiry without processing fee, got %+v", result.Breakdown)
	}

	if len(bookings.created) != 1 {
		t.Fatalf("expected one booking")
	}
	booking := bookings.created[0]
	if booking.Status != domain.BookingStatusPending || !booking.Inquiry || booking.Prepaid || booking.PaymentAccepted {
		t.Fatalf("unexpected enquiry flags: %+v", booking)
	}
	if booking.OrderID != "" {
		t.Fatalf("expected enquiry without order id, got %q", booking.OrderID)
	}

	if len(mailer.inquiries) != 1 || len(mailer.alerts) != 1 || len(mailer.confirmations) != 0 {
		t.Fatalf("expected acknowledgement and alert only")
	}
	if len(leads.leads) != 1 || leads.leads[0].Source != domain.LeadSourceEnquirySubmitted {
		t.Fatalf("expected enquiry lead, got %+v", leads.leads)
	}
	if len(result.SideEffects) != 3 {
		t.Fatalf("expected three side effects, got %+v", result.SideEffects)
	}
}

func TestInquiryServiceRejectsPaidTypes(t *testing.T) {
	svc := newInquiryService(t, &stubMailer{}, nil, &stubCustomers{}, newStubBookings())
	req := multiDayEnquiry()
	req.BookingType = domain.BookingTypeMultiDay

	if _, err := svc.SubmitInquiry(context.Background(), SubmitInquiryCommand{Booking: req}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInquiryServiceEmailFailureIsReported(t *testing.T) {
	mailer := &stubMailer{err: errBoom}
	bookings := newStubBookings()
	svc := newInquiryService(t, mailer, nil, &stubCustomers{}, bookings)

	result, err := svc.SubmitInquiry(context.Background(), SubmitInquiryCommand{Booking: multiDayEnquiry()})
	if err != nil {
		t.Fatalf("expected enquiry to be stored, got %v", err)
	}
	if len(bookings.created) != 1 {
		t.Fatalf("expected booking despite email failure")
	}
	for _, effect := range result.SideEffects {
		if effect.OK() {
			t.Fatalf("expected %s to fail", effect.Name)
		}
	}
}

func TestBookingServiceQuote(t *testing.T) {
	svc, err := NewBookingService(BookingServiceDeps{
		Catalog:        newStubCatalog(),
		Engine:         mustEngine(3.5),
		DeliveryCharge: 50,
	})
	if err != nil {
		t.Fatalf("new booking service: %v", err)
	}
	req := singleDayRequest()

	quote, err := svc.Quote(context.Background(), QuoteCommand{
		YachtID:            req.YachtID,
		PriceTierID:        req.PriceTierID,
		BookingType:        req.BookingType,
		Start:              req.Start,
		End:                req.End,
		AdditionalServices: req.AdditionalServices,
		FeeMode:            FeeModeBankTransfer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Breakdown.TotalPrice != 1280 || quote.Currency != "USD" {
		t.Fatalf("unexpected quote %+v", quote)
	}

	_, err = svc.Quote(context.Background(), QuoteCommand{
		YachtID:     "yacht-2",
		PriceTierID: "tier-miami",
		BookingType: domain.BookingTypeSingleDay,
		Start:       req.Start,
		End:         req.End,
		FeeMode:     "crypto",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unsupported fee mode to fail validation, got %v", err)
	}

	miami, err := svc.Quote(context.Background(), QuoteCommand{
		YachtID:     "yacht-2",
		PriceTierID: "tier-miami",
		BookingType: domain.BookingTypeSingleDay,
		Start:       req.Start,
		End:         req.End,
		FeeMode:     FeeModeBankTransfer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if miami.Breakdown.YatrFee != 1000 || miami.Breakdown.DeliveryCharge != 0 {
		t.Fatalf("expected Miami carve-out without delivery, got %+v", miami.Breakdown)
	}
}

func TestInquiryServiceReusesCustomerForRepeatEmail(t *testing.T) {
	customers := &stubCustomers{}
	bookings := newStubBookings()
	var seq int
	svc, err := NewInquiryService(InquiryServiceDeps{
		Catalog:   newStubCatalog(),
		Customers: customers,
		Bookings:  bookings,
		Engine:    mustEngine(3.5),
		Clock:     fixedClock,
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("%04d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new inquiry service: %v", err)
	}

	first, err := svc.SubmitInquiry(context.Background(), SubmitInquiryCommand{Booking: multiDayEnquiry()})
	if err != nil {
		t.Fatalf("first enquiry: %v", err)
	}
	again := multiDayEnquiry()
	again.CustomerEmail = "  " + strings.ToUpper(again.CustomerEmail) + " "
	second, err := svc.SubmitInquiry(context.Background(), SubmitInquiryCommand{Booking: again})
	if err != nil {
		t.Fatalf("second enquiry: %v", err)
	}

	if len(customers.created) != 1 {
		t.Fatalf("expected one customer row, got %d", len(customers.created))
	}
	if first.CustomerID != second.CustomerID || len(bookings.created) != 2 {
		t.Fatalf("expected both enquiries on customer %q, got %q and %d bookings", first.CustomerID, second.CustomerID, len(bookings.created))
	}
}
