package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// BookingType enumerates the booking funnels supported by the charter site.
type BookingType string

const (
	// BookingTypeSingleDay is a paid booking within a single day.
	BookingTypeSingleDay BookingType = "single-day"
	// BookingTypeMultiDay is a paid booking spanning one or more nights.
	BookingTypeMultiDay BookingType = "multi-day"
	// BookingTypeSingleDayEnquiry requests a single day charter without payment.
	BookingTypeSingleDayEnquiry BookingType = "single-day-enquiry"
	// BookingTypeMultiDayEnquiry requests a multi day charter without payment.
	BookingTypeMultiDayEnquiry BookingType = "multi-day-enquiry"
)

// Valid reports whether the booking type is one of the known values.
func (t BookingType) Valid() bool {
	switch t {
	case BookingTypeSingleDay, BookingTypeMultiDay, BookingTypeSingleDayEnquiry, BookingTypeMultiDayEnquiry:
		return true
	default:
		return false
	}
}

// IsInquiry reports whether the booking type is an enquiry that skips payment.
func (t BookingType) IsInquiry() bool {
	return t == BookingTypeSingleDayEnquiry || t == BookingTypeMultiDayEnquiry
}

// Kind collapses enquiry variants onto the paid type whose fee and tax rules apply.
func (t BookingType) Kind() BookingType {
	switch t {
	case BookingTypeSingleDayEnquiry:
		return BookingTypeSingleDay
	case BookingTypeMultiDayEnquiry:
		return BookingTypeMultiDay
	default:
		return t
	}
}

// DurationType distinguishes day charters from overnight charters on a price tier.
type DurationType string

const (
	DurationTypeSingleDay DurationType = "single-day"
	DurationTypeMultiDay  DurationType = "multi-day"
)

// DurationKind is the structured form of a tier's duration name.
type DurationKind string

const (
	// DurationFlat charges the tier amount regardless of stay length.
	DurationFlat DurationKind = "flat"
	// DurationNightly multiplies the tier amount by the number of nights.
	DurationNightly DurationKind = "nightly"
	// DurationPackage covers PackageNights nights and prorates any overage.
	DurationPackage DurationKind = "package"
)

const nightlyDurationName = "Nightly"

// DurationDescriptor describes how a tier amount scales with the stay length.
type DurationDescriptor struct {
	Kind          DurationKind
	PackageNights int
}

// ParseDurationName converts the stored free-text duration name into a descriptor. Single day tiers
// are always flat. "Nightly" maps to nightly pricing and the first integer embedded in any other
// name is the package length; names without a positive integer fall back to flat pricing.
func ParseDurationName(durationType DurationType, name string) DurationDescriptor {
	if durationType != DurationTypeMultiDay {
		return DurationDescriptor{Kind: DurationFlat}
	}
	if name == nightlyDurationName {
		return DurationDescriptor{Kind: DurationNightly}
	}
	if n, ok := firstInteger(name); ok && n > 0 {
		return DurationDescriptor{Kind: DurationPackage, PackageNights: n}
	}
	return DurationDescriptor{Kind: DurationFlat}
}

// Name renders the descriptor using the legacy naming convention.
func (d DurationDescriptor) Name() string {
	switch d.Kind {
	case DurationNightly:
		return nightlyDurationName
	case DurationPackage:
		return strconv.Itoa(d.PackageNights) + " Night Package"
	default:
		return ""
	}
}

func firstInteger(value string) (int, bool) {
	start := strings.IndexFunc(value, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// PriceTier is a price option offered for a yacht.
type PriceTier struct {
	ID           string
	YachtID      string
	Amount       float64
	DurationType DurationType
	DurationName string
	Duration     DurationDescriptor
}

// FeeType selects how a registration fee rule is evaluated.
type FeeType string

const (
	FeeTypePercentage FeeType = "percentage"
	FeeTypeFlat       FeeType = "flat"
)

// TaxRule is a percentage tax levied by a city for a booking type.
type TaxRule struct {
	ID          string
	Name        string
	Value       float64
	BookingType BookingType
}

// RegistrationFeeRule is a yacht registration fee levied by a city for a booking type.
type RegistrationFeeRule struct {
	ID          string
	Type        FeeType
	Value       float64
	BookingType BookingType
}

// City groups the tax and fee rules for a charter location.
type City struct {
	ID                   string
	Name                 string
	Currency             string
	TaxRules             []TaxRule
	RegistrationFeeRules []RegistrationFeeRule
}

// Yacht is a bookable vessel.
type Yacht struct {
	ID         string
	Name       string
	Length     float64
	CityID     string
	OperatorID string
}

// Operator owns one or more yachts and optionally links a Google calendar.
type Operator struct {
	ID                   string
	Name                 string
	Email                string
	CalendarID           string
	AccessToken          string
	RefreshToken         string
	TokenExpiry          time.Time
	CalendarSyncDisabled bool
}

// AdditionalService is an optional extra offered with a charter.
type AdditionalService struct {
	ID    string
	Name  string
	Price float64
}

// AdditionalServiceSelection is a customer's choice of an additional service.
type AdditionalServiceSelection struct {
	ServiceID string `json:"serviceId"`
	Quantity  int    `json:"quantity"`
}

// Customer is the person making a booking.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}
