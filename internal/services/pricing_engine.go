package services

import (
	"errors"
	"strings"

	"github.com/seaside-charters/api/internal/domain"
)

const (
	miamiCityMarker              = "MIAMI"
	defaultMiamiRegistrationFee  = 1000
	defaultMiamiYachtLengthLimit = 70
)

// PricingEngineConfig carries the business constants of the breakdown.
type PricingEngineConfig struct {
	// ProcessingFeePercent is the card surcharge applied over every other line.
	ProcessingFeePercent float64
	// MiamiRegistrationFee replaces the rule-based registration fee for short yachts in Miami.
	MiamiRegistrationFee float64
	// MiamiYachtLengthLimit is the exclusive length (ft) below which the Miami fee applies.
	MiamiYachtLengthLimit float64
}

// PricedService is a selected additional service resolved against the catalogue.
type PricedService struct {
	Service  domain.AdditionalService
	Quantity int
}

// PriceInput is everything the engine needs to price a booking.
type PriceInput struct {
	BasePrice            float64
	YachtLength          float64
	CityName             string
	Schedule             FeeSchedule
	Services             []PricedService
	DeliveryCharge       float64
	IncludeProcessingFee bool
}

// PricingEngine composes a booking's price breakdown. It performs no I/O and the same input always
// yields the same breakdown.
type PricingEngine struct {
	processingFeePercent float64
	miamiFee             float64
	miamiLengthLimit     float64
}

// NewPricingEngine validates the configured constants.
func NewPricingEngine(cfg PricingEngineConfig) (*PricingEngine, error) {
	if !isFiniteNonNegative(cfg.ProcessingFeePercent) || cfg.ProcessingFeePercent >= 100 {
		return nil, errors.New("pricing engine: processing fee percent must be within [0, 100)")
	}
	miamiFee := cfg.MiamiRegistrationFee
	if miamiFee <= 0 {
		miamiFee = defaultMiamiRegistrationFee
	}
	lengthLimit := cfg.MiamiYachtLengthLimit
	if lengthLimit <= 0 {
		lengthLimit = defaultMiamiYachtLengthLimit
	}
	if !isFiniteNonNegative(miamiFee) || !isFiniteNonNegative(lengthLimit) {
		return nil, errors.New("pricing engine: miami constants must be finite")
	}
	return &PricingEngine{
		processingFeePercent: cfg.ProcessingFeePercent,
		miamiFee:             miamiFee,
		miamiLengthLimit:     lengthLimit,
	}, nil
}

// Calculate prices a booking. The processing fee, when requested, is computed last over every
// other line.
func (e *PricingEngine) Calculate(in PriceInput) (domain.PriceBreakdown, error) {
	if err := validatePriceInput(in); err != nil {
		return domain.PriceBreakdown{}, err
	}

	registrationFee, err := e.registrationFee(in)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}

	taxLines := make([]domain.TaxLine, 0, len(in.Schedule.Taxes))
	var taxTotal float64
	for _, tax := range in.Schedule.Taxes {
		amount := in.BasePrice * tax.Value / 100
		taxLines = append(taxLines, domain.TaxLine{Name: tax.Name, Amount: amount})
		taxTotal += amount
	}

	serviceLines := make([]domain.ServiceLine, 0, len(in.Services))
	var servicesTotal float64
	for _, selected := range in.Services {
		line := selected.Service.Price * float64(selected.Quantity)
		serviceLines = append(serviceLines, domain.ServiceLine{
			ServiceID: selected.Service.ID,
			Name:      selected.Service.Name,
			Quantity:  selected.Quantity,
			UnitPrice: selected.Service.Price,
			Total:     line,
		})
		servicesTotal += line
	}

	subtotal := in.BasePrice + registrationFee + taxTotal + servicesTotal + in.DeliveryCharge
	var processingFee float64
	if in.IncludeProcessingFee {
		processingFee = subtotal * e.processingFeePercent / 100
	}

	return domain.PriceBreakdown{
		BasePrice:               in.BasePrice,
		YatrFee:                 registrationFee,
		TaxBreakdown:            taxLines,
		TaxTotal:                taxTotal,
		AdditionalServices:      serviceLines,
		AdditionalServicesTotal: servicesTotal,
		ProcessingFee:           processingFee,
		DeliveryCharge:          in.DeliveryCharge,
		TotalPrice:              subtotal + processingFee,
	}, nil
}

func (e *PricingEngine) registrationFee(in PriceInput) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(in.CityName), miamiCityMarker) && in.YachtLength < e.miamiLengthLimit {
		return e.miamiFee, nil
	}
	var fee float64
	for _, rule := range in.Schedule.RegistrationFees {
		switch rule.Type {
		case domain.FeeTypeFlat:
			fee += rule.Value
		case domain.FeeTypePercentage:
			fee += in.BasePrice * rule.Value / 100
		default:
			return 0, validationErrorf("registration fee rule %q has unknown type %q", rule.ID, rule.Type)
		}
	}
	return fee, nil
}

func validatePriceInput(in PriceInput) error {
	if !isFiniteNonNegative(in.BasePrice) {
		return validationErrorf("base price must be a finite non-negative number")
	}
	if !isFiniteNonNegative(in.YachtLength) {
		return validationErrorf("yacht length must be a finite non-negative number")
	}
	if !isFiniteNonNegative(in.DeliveryCharge) {
		return validationErrorf("delivery charge must be a finite non-negative number")
	}
	for _, tax := range in.Schedule.Taxes {
		if !isFiniteNonNegative(tax.Value) {
			return validationErrorf("tax rule %q has an invalid value", tax.Name)
		}
	}
	for _, fee := range in.Schedule.RegistrationFees {
		if !isFiniteNonNegative(fee.Value) {
			return validationErrorf("registration fee rule %q has an invalid value", fee.ID)
		}
	}
	for _, selected := range in.Services {
		if selected.Quantity < 1 {
			return validationErrorf("service %q quantity must be at least 1", selected.Service.ID)
		}
		if !isFiniteNonNegative(selected.Service.Price) {
			return validationErrorf("service %q has an invalid price", selected.Service.ID)
		}
	}
	return nil
}
