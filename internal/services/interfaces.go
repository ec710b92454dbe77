package services

import (
	"context"
	"time"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	BookingType                = domain.BookingType
	BookingIntent              = domain.BookingIntent
	Booking                    = domain.Booking
	PriceBreakdown             = domain.PriceBreakdown
	AdditionalServiceSelection = domain.AdditionalServiceSelection
	BookingNotification        = domain.BookingNotification
	Lead                       = domain.Lead
)

// BookingService prices bookings without side effects.
type BookingService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
}

// CheckoutService stores a pending booking intent and opens a hosted payment session for it.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
}

// InquiryService records enquiries that skip payment.
type InquiryService interface {
	SubmitInquiry(ctx context.Context, cmd SubmitInquiryCommand) (InquiryResult, error)
}

// FinalizerService turns verified payment notifications into confirmed bookings.
type FinalizerService interface {
	HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (FinalizeResult, error)
}

// CheckoutGateway creates hosted checkout sessions.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// WebhookVerifier authenticates and decodes payment webhooks.
type WebhookVerifier interface {
	VerifyEvent(ctx context.Context, payload []byte, signature string) (payments.Event, error)
}

// Mailer delivers transactional booking emails.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, notification BookingNotification) error
	SendInternalAlert(ctx context.Context, notification BookingNotification) error
	SendInquiryAcknowledgement(ctx context.Context, notification BookingNotification) error
}

// CalendarSync creates calendar events for the operator of a booked yacht.
type CalendarSync interface {
	CreateBookingEvent(ctx context.Context, notification BookingNotification) error
}

// LeadCapturer forwards customer contact details to the CRM.
type LeadCapturer interface {
	CaptureLead(ctx context.Context, lead Lead) error
}

// BookingEventPublisher announces confirmed bookings to downstream consumers.
type BookingEventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, notification BookingNotification) error
}

// Metrics records booking workflow outcomes.
type Metrics interface {
	CheckoutSession(result string)
	Finalized(result string)
	SideEffectFailed(effect string)
}

type noopMetrics struct{}

func (noopMetrics) CheckoutSession(string)  {}
func (noopMetrics) Finalized(string)        {}
func (noopMetrics) SideEffectFailed(string) {}

// FeeMode selects whether the card processing surcharge applies.
type FeeMode string

const (
	// FeeModeProcessingFee adds the card/Klarna processing fee.
	FeeModeProcessingFee FeeMode = "processing_fee"
	// FeeModeBankTransfer omits the processing fee.
	FeeModeBankTransfer FeeMode = "bank_transfer"
)

// BookingRequest carries the customer-supplied booking fields shared by checkout and enquiries.
type BookingRequest struct {
	YachtID            string
	PriceTierID        string
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	Start              time.Time
	End                time.Time
	LocalStartDate     string
	LocalStartTime     string
	LocalEndDate       string
	LocalEndTime       string
	Guests             int
	BookingType        BookingType
	AffiliateID        string
	AdditionalServices []AdditionalServiceSelection
	TermsAccepted      bool
	PaymentAccepted    bool
	BookingDetails     map[string]any
}

// QuoteCommand requests a price breakdown.
type QuoteCommand struct {
	YachtID            string
	PriceTierID        string
	BookingType        BookingType
	Start              time.Time
	End                time.Time
	AdditionalServices []AdditionalServiceSelection
	FeeMode            FeeMode
}

// QuoteResult is the priced booking returned to the client.
type QuoteResult struct {
	Breakdown PriceBreakdown
	Currency  string
}

// CreateCheckoutSessionCommand starts a paid booking.
type CreateCheckoutSessionCommand struct {
	Booking BookingRequest
	FeeMode FeeMode
}

// CheckoutSessionResult identifies the stored intent and the hosted payment page.
type CheckoutSessionResult struct {
	OrderID     string
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
	Breakdown   PriceBreakdown
	Currency    string
}

// SubmitInquiryCommand records an enquiry booking.
type SubmitInquiryCommand struct {
	Booking BookingRequest
}

// InquiryResult reports the pending booking created for an enquiry.
type InquiryResult struct {
	BookingID   string
	CustomerID  string
	Breakdown   PriceBreakdown
	Currency    string
	SideEffects []BestEffortResult
}

// FinalizeResult reports how a payment webhook was handled.
type FinalizeResult struct {
	EventID   string
	EventType string
	OrderID   string
	BookingID string
	// Ignored is set for events the finalizer does not act on.
	Ignored bool
	// Duplicate is set when the order had already been turned into a booking.
	Duplicate   bool
	SideEffects []BestEffortResult
}
