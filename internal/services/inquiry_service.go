package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

const (
	customerIDPrefix = "cus_"
	bookingIDPrefix  = "bkg_"
)

// InquiryServiceDeps wires the enquiry service.
type InquiryServiceDeps struct {
	Catalog   repositories.CatalogRepository
	Customers repositories.CustomerRepository
	Bookings  repositories.BookingRepository
	Engine    *PricingEngine
	Mailer    Mailer
	Leads     LeadCapturer
	Metrics   Metrics
	// DeliveryCharge is added when any additional service is selected.
	DeliveryCharge float64
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type inquiryService struct {
	pricer    bookingPricer
	customers repositories.CustomerRepository
	bookings  repositories.BookingRepository
	mailer    Mailer
	leads     LeadCapturer
	effects   sideEffects
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewInquiryService constructs an InquiryService validating required dependencies.
func NewInquiryService(deps InquiryServiceDeps) (InquiryService, error) {
	pricer, err := newBookingPricer(deps.Catalog, deps.Engine, deps.DeliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("inquiry service: %w", err)
	}
	if deps.Customers == nil {
		return nil, errors.New("inquiry service: customer repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("inquiry service: booking repository is required")
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
	return &inquiryService{
		pricer:    pricer,
		customers: deps.Customers,
		bookings:  deps.Bookings,
		mailer:    deps.Mailer,
		leads:     deps.Leads,
		effects:   sideEffects{logger: logger, metrics: metrics},
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// SubmitInquiry stores a pending, unpaid booking for an enquiry and notifies the customer and the team.
func (s *inquiryService) SubmitInquiry(ctx context.Context, cmd SubmitInquiryCommand) (InquiryResult, error) {
	req := normaliseBookingRequest(cmd.Booking)
	if err := validateBookingRequest(req); err != nil {
		return InquiryResult{}, err
	}
	if !req.BookingType.IsInquiry() {
		return InquiryResult{}, validationErrorf("booking type %q is not an enquiry", req.BookingType)
	}

	priced, err := s.pricer.price(ctx, pricingRequest{
		YachtID:     req.YachtID,
		PriceTierID: req.PriceTierID,
		BookingType: req.BookingType,
		Start:       req.Start,
		End:         req.End,
		Services:    req.AdditionalServices,
	})
	if err != nil {
		return InquiryResult{}, err
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
		return InquiryResult{}, translatePersistError(err, "upsert customer")
	}

	booking, err := s.bookings.CreateBooking(ctx, domain.Booking{
		ID:              bookingIDPrefix + s.newID(),
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
		Status:          domain.BookingStatusPending,
		TermsAccepted:   req.TermsAccepted,
		PaymentAccepted: false,
		Inquiry:         true,
		Prepaid:         false,
		AffiliateID:     req.AffiliateID,
		StaticDetails:   bookingDetails(req.BookingDetails, priced),
		TaxRuleIDs:      priced.Schedule.TaxRuleIDs(),
		Services:        bookingServiceLines(priced.Breakdown),
		CreatedAt:       now,
	})
	if err != nil {
		return InquiryResult{}, translatePersistError(err, "create booking")
	}

	s.logger(ctx, "inquiry.submitted", map[string]any{
		"bookingId": booking.ID,
		"yachtId":   booking.YachtID,
	})

	notification := notificationFor(booking, customer, req, priced)
	fields := map[string]any{"bookingId": booking.ID}
	var effects []BestEffortResult
	if s.mailer != nil {
		effects = append(effects,
			s.effects.run(ctx, EffectInquiryEmail, fields, func(ctx context.Context) error {
				return s.mailer.SendInquiryAcknowledgement(ctx, notification)
			}),
			s.effects.run(ctx, EffectInternalAlert, fields, func(ctx context.Context) error {
				return s.mailer.SendInternalAlert(ctx, notification)
			}),
		)
	}
	if s.leads != nil {
		effects = append(effects, s.effects.run(ctx, EffectCRMLead, fields, func(ctx context.Context) error {
			return s.leads.CaptureLead(ctx, domain.Lead{
				Name:    customer.Name,
				Email:   customer.Email,
				Phone:   customer.Phone,
				Source:  domain.LeadSourceEnquirySubmitted,
				YachtID: booking.YachtID,
			})
		}))
	}

	return InquiryResult{
		BookingID:   booking.ID,
		CustomerID:  customer.ID,
		Breakdown:   priced.Breakdown,
		Currency:    cityCurrency(priced.City),
		SideEffects: effects,
	}, nil
}
