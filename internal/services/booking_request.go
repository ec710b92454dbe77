package services

import (
	"maps"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

const maxGuests = 500

var customerPhonePattern = regexp.MustCompile(`^[0-9+()\-.\s]{6,24}$`)

func normaliseBookingRequest(req BookingRequest) BookingRequest {
	req.YachtID = strings.TrimSpace(req.YachtID)
	req.PriceTierID = strings.TrimSpace(req.PriceTierID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.AffiliateID = strings.TrimSpace(req.AffiliateID)
	req.BookingType = domain.BookingType(strings.ToLower(strings.TrimSpace(string(req.BookingType))))
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()
	return req
}

func validateBookingRequest(req BookingRequest) error {
	if req.YachtID == "" {
		return validationErrorf("yacht id is required")
	}
	if req.PriceTierID == "" {
		return validationErrorf("price tier id is required")
	}
	if req.CustomerName == "" {
		return validationErrorf("customer name is required")
	}
	if req.CustomerEmail == "" {
		return validationErrorf("customer email is required")
	}
	if addr, err := mail.ParseAddress(req.CustomerEmail); err != nil || addr.Address != req.CustomerEmail {
		return validationErrorf("customer email is invalid")
	}
	if req.CustomerPhone != "" && !customerPhonePattern.MatchString(req.CustomerPhone) {
		return validationErrorf("customer phone is invalid")
	}
	if req.Guests < 1 || req.Guests > maxGuests {
		return validationErrorf("guests must be between 1 and %d", maxGuests)
	}
	if !req.BookingType.Valid() {
		return validationErrorf("booking type %q is not supported", req.BookingType)
	}
	return validateStay(req.Start, req.End)
}

func validateStay(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationErrorf("start and end are required")
	}
	if !end.After(start) {
		return validationErrorf("end must be after start")
	}
	return nil
}

// bookingIntent snapshots the request and its breakdown for the intent store.
func bookingIntent(orderID string, req BookingRequest, priced pricedBooking, processingFee bool, now time.Time) domain.BookingIntent {
	return domain.BookingIntent{
		OrderID:               orderID,
		YachtID:               req.YachtID,
		CustomerName:          req.CustomerName,
		CustomerEmail:         req.CustomerEmail,
		CustomerPhone:         req.CustomerPhone,
		Start:                 req.Start,
		End:                   req.End,
		LocalStartDate:        req.LocalStartDate,
		LocalStartTime:        req.LocalStartTime,
		LocalEndDate:          req.LocalEndDate,
		LocalEndTime:          req.LocalEndTime,
		Guests:                req.Guests,
		BookingType:           req.BookingType,
		PriceTierID:           req.PriceTierID,
		AffiliateID:           req.AffiliateID,
		AdditionalServices:    req.AdditionalServices,
		TaxBreakdown:          priced.Breakdown.TaxBreakdown,
		TermsAccepted:         req.TermsAccepted,
		PaymentAccepted:       req.PaymentAccepted,
		ProcessingFeeRequired: processingFee,
		BookingDetails:        bookingDetails(req.BookingDetails, priced),
		CreatedAt:             now,
	}
}

// requestFromIntent rebuilds the booking request stored with an intent.
func requestFromIntent(intent domain.BookingIntent) BookingRequest {
	return BookingRequest{
		YachtID:            intent.YachtID,
		PriceTierID:        intent.PriceTierID,
		CustomerName:       intent.CustomerName,
		CustomerEmail:      intent.CustomerEmail,
		CustomerPhone:      intent.CustomerPhone,
		Start:              intent.Start,
		End:                intent.End,
		LocalStartDate:     intent.LocalStartDate,
		LocalStartTime:     intent.LocalStartTime,
		LocalEndDate:       intent.LocalEndDate,
		LocalEndTime:       intent.LocalEndTime,
		Guests:             intent.Guests,
		BookingType:        intent.BookingType,
		AffiliateID:        intent.AffiliateID,
		AdditionalServices: intent.AdditionalServices,
		TermsAccepted:      intent.TermsAccepted,
		PaymentAccepted:    intent.PaymentAccepted,
		BookingDetails:     intent.BookingDetails,
	}
}

// bookingDetails is the display snapshot kept with the booking so later catalogue edits do not
// change what the customer was shown.
func bookingDetails(extra map[string]any, priced pricedBooking) map[string]any {
	details := make(map[string]any, len(extra)+6)
	maps.Copy(details, extra)
	details["yachtName"] = priced.Yacht.Name
	details["yachtLength"] = priced.Yacht.Length
	details["cityName"] = priced.City.Name
	details["currency"] = cityCurrency(priced.City)
	details["durationName"] = priced.Tier.Duration.Name()
	details["tierAmount"] = priced.Tier.Amount
	return details
}

func cityCurrency(city domain.City) string {
	currency := strings.ToUpper(strings.TrimSpace(city.Currency))
	if currency == "" {
		return "USD"
	}
	return currency
}

func notificationFor(booking domain.Booking, customer domain.Customer, req BookingRequest, priced pricedBooking) domain.BookingNotification {
	return domain.BookingNotification{
		Booking:        booking,
		Customer:       customer,
		Yacht:          priced.Yacht,
		City:           priced.City,
		Breakdown:      priced.Breakdown,
		LocalStartDate: req.LocalStartDate,
		LocalStartTime: req.LocalStartTime,
		LocalEndDate:   req.LocalEndDate,
		LocalEndTime:   req.LocalEndTime,
	}
}

func bookingTypeLabel(bookingType domain.BookingType) string {
	switch bookingType.Kind() {
	case domain.BookingTypeMultiDay:
		return "Multi-day charter"
	default:
		return "Single-day charter"
	}
}
