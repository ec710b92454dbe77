package handlers

import (
	"context"
	"errors"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/services"
)

type stubBookingService struct {
	quoteFunc func(context.Context, services.QuoteCommand) (services.QuoteResult, error)
}

func (s *stubBookingService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.QuoteResult, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, cmd)
	}
	return services.QuoteResult{}, errors.New("not implemented")
}

type stubCheckoutService struct {
	createFunc func(context.Context, services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error)
	calls      int
}

func (s *stubCheckoutService) CreateCheckoutSession(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error) {
	s.calls++
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.CheckoutSessionResult{}, errors.New("not implemented")
}

type stubInquiryService struct {
	submitFunc func(context.Context, services.SubmitInquiryCommand) (services.InquiryResult, error)
}

func (s *stubInquiryService) SubmitInquiry(ctx context.Context, cmd services.SubmitInquiryCommand) (services.InquiryResult, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, cmd)
	}
	return services.InquiryResult{}, errors.New("not implemented")
}

type stubFinalizerService struct {
	handleFunc func(context.Context, []byte, string) (services.FinalizeResult, error)
}

func (s *stubFinalizerService) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (services.FinalizeResult, error) {
	if s.handleFunc != nil {
		return s.handleFunc(ctx, payload, signature)
	}
	return services.FinalizeResult{}, errors.New("not implemented")
}

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func sampleBreakdown() domain.PriceBreakdown {
	return domain.PriceBreakdown{
		BasePrice:               1000,
		YatrFee:                 100,
		TaxBreakdown:            []domain.TaxLine{{Name: "Sales Tax", Amount: 60}},
		TaxTotal:                60,
		AdditionalServices:      []domain.ServiceLine{{ServiceID: "svc-1", Name: "Jet Ski", Quantity: 1, UnitPrice: 70, Total: 70}},
		AdditionalServicesTotal: 70,
		DeliveryCharge:          50,
		TotalPrice:              1280,
	}
}

const checkoutBody = `{
  "yachtId": "yacht-1",
  "priceTierId": "tier-day",
  "bookingType": "single-day",
  "start": "2026-07-04T14:00:00Z",
  "end": "2026-07-04T18:00:00Z",
  "localStartDate": "2026-07-04",
  "localStartTime": "10:00",
  "guests": 6,
  "customerName": "Ana Torres",
  "customerEmail": "ana@example.com",
  "customerPhone": "+1 305 555 0101",
  "additionalServices": [{"serviceId": "svc-1", "quantity": 1}],
  "termsAccepted": true,
  "notes": "Birthday",
  "feeMode": "bank_transfer"
}`
