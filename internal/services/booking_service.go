package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

// BookingServiceDeps wires the quote service.
type BookingServiceDeps struct {
	Catalog        repositories.CatalogRepository
	Engine         *PricingEngine
	DeliveryCharge float64
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type bookingService struct {
	pricer bookingPricer
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewBookingService constructs the quote service.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	pricer, err := newBookingPricer(deps.Catalog, deps.Engine, deps.DeliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("booking service: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &bookingService{pricer: pricer, logger: logger}, nil
}

// Quote runs the pricing pipeline the checkout would run, without storing anything.
func (s *bookingService) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	yachtID := strings.TrimSpace(cmd.YachtID)
	tierID := strings.TrimSpace(cmd.PriceTierID)
	if yachtID == "" || tierID == "" {
		return QuoteResult{}, validationErrorf("yacht id and price tier id are required")
	}
	bookingType := domain.BookingType(strings.ToLower(strings.TrimSpace(string(cmd.BookingType))))
	if !bookingType.Valid() {
		return QuoteResult{}, validationErrorf("booking type %q is not supported", cmd.BookingType)
	}
	if err := validateStay(cmd.Start, cmd.End); err != nil {
		return QuoteResult{}, err
	}
	feeMode, err := resolveFeeMode(cmd.FeeMode, bookingType)
	if err != nil {
		return QuoteResult{}, err
	}

	priced, err := s.pricer.price(ctx, pricingRequest{
		YachtID:              yachtID,
		PriceTierID:          tierID,
		BookingType:          bookingType,
		Start:                cmd.Start.UTC(),
		End:                  cmd.End.UTC(),
		Services:             cmd.AdditionalServices,
		IncludeProcessingFee: feeMode == FeeModeProcessingFee,
	})
	if err != nil {
		return QuoteResult{}, err
	}
	s.logger(ctx, "booking.quoted", map[string]any{
		"yachtId":     yachtID,
		"bookingType": string(bookingType),
		"totalPrice":  priced.Breakdown.TotalPrice,
	})
	return QuoteResult{Breakdown: priced.Breakdown, Currency: cityCurrency(priced.City)}, nil
}

// resolveFeeMode defaults paid bookings to the processing fee variant. Enquiries never carry one.
func resolveFeeMode(mode FeeMode, bookingType domain.BookingType) (FeeMode, error) {
	mode = FeeMode(strings.ToLower(strings.TrimSpace(string(mode))))
	if bookingType.IsInquiry() {
		if mode == FeeModeProcessingFee {
			return "", validationErrorf("enquiries cannot use fee mode %q", mode)
		}
		return FeeModeBankTransfer, nil
	}
	switch mode {
	case "":
		return FeeModeProcessingFee, nil
	case FeeModeProcessingFee, FeeModeBankTransfer:
		return mode, nil
	default:
		return "", validationErrorf("fee mode %q is not supported", mode)
	}
}
