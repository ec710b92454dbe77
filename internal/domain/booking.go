package domain

import "time"

// BookingStatus tracks whether a booking is awaiting confirmation.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
)

// BookingIntent is the pending booking held in the short-lived store between checkout and the
// payment webhook. It is serialised as JSON.
type BookingIntent struct {
	OrderID               string                       `json:"orderId"`
	YachtID               string                       `json:"yachtId"`
	CustomerName          string                       `json:"customerName"`
	CustomerEmail         string                       `json:"customerEmail"`
	CustomerPhone         string                       `json:"customerPhone"`
	Start                 time.Time                    `json:"start"`
	End                   time.Time                    `json:"end"`
	LocalStartDate        string                       `json:"localStartDate,omitempty"`
	LocalStartTime        string                       `json:"localStartTime,omitempty"`
	LocalEndDate          string                       `json:"localEndDate,omitempty"`
	LocalEndTime          string                       `json:"localEndTime,omitempty"`
	Guests                int                          `json:"guests"`
	BookingType           BookingType                  `json:"bookingType"`
	PriceTierID           string                       `json:"priceTierId"`
	AffiliateID           string                       `json:"affiliateId,omitempty"`
	AdditionalServices    []AdditionalServiceSelection `json:"additionalServices,omitempty"`
	TaxBreakdown          []TaxLine                    `json:"taxBreakdown"`
	TermsAccepted         bool                         `json:"termsAccepted"`
	PaymentAccepted       bool                         `json:"paymentAccepted"`
	ProcessingFeeRequired bool                         `json:"processingFeeRequired"`
	BookingDetails        map[string]any               `json:"bookingDetails,omitempty"`
	CreatedAt             time.Time                    `json:"createdAt"`
}

// BookingServiceLine is an additional service attached to a persisted booking.
type BookingServiceLine struct {
	ServiceID string
	Name      string
	Quantity  int
	UnitPrice float64
	Total     float64
}

// Booking is the durable booking record.
type Booking struct {
	ID              string
	OrderID         string
	YachtID         string
	CustomerID      string
	PriceTierID     string
	Start           time.Time
	End             time.Time
	Guests          int
	BasePrice       float64
	YatrFee         float64
	ProcessingFee   float64
	DeliveryCharge  float64
	TotalPrice      float64
	BookingType     BookingType
	Status          BookingStatus
	TermsAccepted   bool
	PaymentAccepted bool
	Inquiry         bool
	Prepaid         bool
	AffiliateID     string
	StaticDetails   map[string]any
	TaxRuleIDs      []string
	Services        []BookingServiceLine
	CreatedAt       time.Time
}
