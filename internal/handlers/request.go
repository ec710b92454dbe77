package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/services"
)

const maxBookingRequestBody = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// bookingPayload is the JSON body shared by quote, checkout and enquiry requests.
type bookingPayload struct {
	YachtID            string                              `json:"yachtId"`
	PriceTierID        string                              `json:"priceTierId"`
	BookingType        string                              `json:"bookingType"`
	Start              string                              `json:"start"`
	End                string                              `json:"end"`
	LocalStartDate     string                              `json:"localStartDate"`
	LocalStartTime     string                              `json:"localStartTime"`
	LocalEndDate       string                              `json:"localEndDate"`
	LocalEndTime       string                              `json:"localEndTime"`
	Guests             int                                 `json:"guests"`
	CustomerName       string                              `json:"customerName"`
	CustomerEmail      string                              `json:"customerEmail"`
	CustomerPhone      string                              `json:"customerPhone"`
	AffiliateID        string                              `json:"affiliateId"`
	AdditionalServices []domain.AdditionalServiceSelection `json:"additionalServices"`
	TermsAccepted      bool                                `json:"termsAccepted"`
	PaymentAccepted    bool                                `json:"paymentAccepted"`
	Notes              string                              `json:"notes"`
	FeeMode            string                              `json:"feeMode"`
}

func decodeBookingPayload(r *http.Request) (bookingPayload, error) {
	body, err := readLimitedBody(r, maxBookingRequestBody)
	if err != nil {
		return bookingPayload{}, err
	}
	var payload bookingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return bookingPayload{}, errors.New("request body must be valid JSON")
	}
	return payload, nil
}

func (p bookingPayload) stay() (time.Time, time.Time, error) {
	start, err := parseTimestamp("start", p.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTimestamp("end", p.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (p bookingPayload) bookingRequest() (services.BookingRequest, error) {
	start, end, err := p.stay()
	if err != nil {
		return services.BookingRequest{}, err
	}
	req := services.BookingRequest{
		YachtID:            strings.TrimSpace(p.YachtID),
		PriceTierID:        strings.TrimSpace(p.PriceTierID),
		CustomerName:       p.CustomerName,
		CustomerEmail:      p.CustomerEmail,
		CustomerPhone:      p.CustomerPhone,
		Start:              start,
		End:                end,
		LocalStartDate:     p.LocalStartDate,
		LocalStartTime:     p.LocalStartTime,
		LocalEndDate:       p.LocalEndDate,
		LocalEndTime:       p.LocalEndTime,
		Guests:             p.Guests,
		BookingType:        domain.BookingType(strings.TrimSpace(p.BookingType)),
		AffiliateID:        strings.TrimSpace(p.AffiliateID),
		AdditionalServices: p.AdditionalServices,
		TermsAccepted:      p.TermsAccepted,
		PaymentAccepted:    p.PaymentAccepted,
	}
	if notes := strings.TrimSpace(p.Notes); notes != "" {
		req.BookingDetails = map[string]any{"notes": notes}
	}
	return req, nil
}

func (p bookingPayload) quoteCommand() (services.QuoteCommand, error) {
	start, end, err := p.stay()
	if err != nil {
		return services.QuoteCommand{}, err
	}
	return services.QuoteCommand{
		YachtID:            strings.TrimSpace(p.YachtID),
		PriceTierID:        strings.TrimSpace(p.PriceTierID),
		BookingType:        domain.BookingType(strings.TrimSpace(p.BookingType)),
		Start:              start,
		End:                end,
		AdditionalServices: p.AdditionalServices,
		FeeMode:            services.FeeMode(strings.TrimSpace(p.FeeMode)),
	}, nil
}

func parseTimestamp(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", field)
	}
	return parsed.UTC(), nil
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
