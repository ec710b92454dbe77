package domain

// BookingNotification is the snapshot handed to email, calendar and event side effects once a
// booking or enquiry has been persisted.
type BookingNotification struct {
	Booking   Booking
	Customer  Customer
	Yacht     Yacht
	City      City
	Breakdown PriceBreakdown
	// Local display strings captured at checkout.
	LocalStartDate string
	LocalStartTime string
	LocalEndDate   string
	LocalEndTime   string
}

// Currency returns the city currency, defaulting to USD.
func (n BookingNotification) Currency() string {
	if n.City.Currency == "" {
		return "USD"
	}
	return n.City.Currency
}

// LeadSource labels the funnel stage a CRM lead was captured at.
type LeadSource string

const (
	LeadSourceCheckoutStarted  LeadSource = "Checkout started"
	LeadSourceEnquirySubmitted LeadSource = "Enquiry submitted"
)

// Lead is the contact information forwarded to the CRM integration.
type Lead struct {
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Phone   string     `json:"phone,omitempty"`
	Source  LeadSource `json:"source"`
	YachtID string     `json:"yachtId,omitempty"`
	OrderID string     `json:"orderId,omitempty"`
}
