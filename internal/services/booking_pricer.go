package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

// pricingRequest is the subset of a booking that determines its price.
type pricingRequest struct {
	YachtID              string
	PriceTierID          string
	BookingType          domain.BookingType
	Start                time.Time
	End                  time.Time
	Services             []domain.AdditionalServiceSelection
	IncludeProcessingFee bool
}

// pricedBooking is the outcome of the pricing pipeline along with the catalogue rows it read.
type pricedBooking struct {
	Yacht     domain.Yacht
	City      domain.City
	Tier      domain.PriceTier
	Schedule  FeeSchedule
	Services  []PricedService
	Breakdown domain.PriceBreakdown
}

// bookingPricer runs the duration calculator, fee schedule resolver and breakdown engine against the
// catalogue. Quotes, checkout and webhook finalisation all price through it.
type bookingPricer struct {
	catalog        repositories.CatalogRepository
	engine         *PricingEngine
	deliveryCharge float64
}

func newBookingPricer(catalog repositories.CatalogRepository, engine *PricingEngine, deliveryCharge float64) (bookingPricer, error) {
	if catalog == nil {
		return bookingPricer{}, errors.New("catalog repository is required")
	}
	if engine == nil {
		return bookingPricer{}, errors.New("pricing engine is required")
	}
	if !isFiniteNonNegative(deliveryCharge) {
		return bookingPricer{}, errors.New("delivery charge must be a finite non-negative number")
	}
	return bookingPricer{catalog: catalog, engine: engine, deliveryCharge: deliveryCharge}, nil
}

func (p bookingPricer) price(ctx context.Context, req pricingRequest) (pricedBooking, error) {
	yacht, err := p.catalog.GetYacht(ctx, req.YachtID)
	if err != nil {
		return pricedBooking{}, translateCatalogError(err, "yacht", req.YachtID)
	}
	city, err := p.catalog.GetCity(ctx, yacht.CityID)
	if err != nil {
		return pricedBooking{}, translateCatalogError(err, "city", yacht.CityID)
	}
	tier, err := p.catalog.GetPriceTier(ctx, req.PriceTierID)
	if err != nil {
		return pricedBooking{}, translateCatalogError(err, "price tier", req.PriceTierID)
	}
	if tier.YachtID != yacht.ID {
		return pricedBooking{}, notFoundErrorf("price tier %q is not offered for yacht %q", tier.ID, yacht.ID)
	}

	services, err := p.resolveServices(ctx, req.Services)
	if err != nil {
		return pricedBooking{}, err
	}

	basePrice, err := EffectiveBasePrice(tier, req.Start, req.End)
	if err != nil {
		return pricedBooking{}, err
	}

	schedule := ResolveFeeSchedule(city, req.BookingType)
	var delivery float64
	if len(services) > 0 {
		delivery = p.deliveryCharge
	}
	breakdown, err := p.engine.Calculate(PriceInput{
		BasePrice:            basePrice,
		YachtLength:          yacht.Length,
		CityName:             city.Name,
		Schedule:             schedule,
		Services:             services,
		DeliveryCharge:       delivery,
		IncludeProcessingFee: req.IncludeProcessingFee,
	})
	if err != nil {
		return pricedBooking{}, err
	}

	return pricedBooking{
		Yacht:     yacht,
		City:      city,
		Tier:      tier,
		Schedule:  schedule,
		Services:  services,
		Breakdown: breakdown,
	}, nil
}

// resolveServices merges repeated selections and resolves each against the catalogue, keeping the
// order in which services were first selected.
func (p bookingPricer) resolveServices(ctx context.Context, selections []domain.AdditionalServiceSelection) ([]PricedService, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	order := make([]string, 0, len(selections))
	quantities := make(map[string]int, len(selections))
	for _, selection := range selections {
		id := strings.TrimSpace(selection.ServiceID)
		if id == "" {
			return nil, validationErrorf("additional service id is required")
		}
		if selection.Quantity < 1 {
			return nil, validationErrorf("additional service %q quantity must be at least 1", id)
		}
		if _, seen := quantities[id]; !seen {
			order = append(order, id)
		}
		quantities[id] += selection.Quantity
	}

	found, err := p.catalog.GetAdditionalServices(ctx, order)
	if err != nil {
		return nil, translateCatalogError(err, "additional services", strings.Join(order, ","))
	}
	byID := make(map[string]domain.AdditionalService, len(found))
	for _, service := range found {
		byID[service.ID] = service
	}

	priced := make([]PricedService, 0, len(order))
	for _, id := range order {
		service, ok := byID[id]
		if !ok {
			return nil, notFoundErrorf("additional service %q", id)
		}
		priced = append(priced, PricedService{Service: service, Quantity: quantities[id]})
	}
	return priced, nil
}

func translateCatalogError(err error, entity, id string) error {
	switch {
	case repositories.IsNotFound(err):
		return notFoundErrorf("%s %q", entity, id)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: load %s: %v", ErrUnavailable, entity, err)
	default:
		return fmt.Errorf("booking: load %s %q: %w", entity, id, err)
	}
}

func translatePersistError(err error, op string) error {
	if repositories.IsUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("booking: %s: %w", op, err)
}

// bookingServiceLines converts priced services into persisted booking lines.
func bookingServiceLines(breakdown domain.PriceBreakdown) []domain.BookingServiceLine {
	if len(breakdown.AdditionalServices) == 0 {
		return nil
	}
	lines := make([]domain.BookingServiceLine, 0, len(breakdown.AdditionalServices))
	for _, line := range breakdown.AdditionalServices {
		lines = append(lines, domain.BookingServiceLine{
			ServiceID: line.ServiceID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return lines
}
