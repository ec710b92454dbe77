package domain

import "math"

// TaxLine is a single tax amount in a price breakdown.
type TaxLine struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// ServiceLine is a priced additional service in a price breakdown.
type ServiceLine struct {
	ServiceID string  `json:"serviceId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Total     float64 `json:"total"`
}

// PriceBreakdown captures the itemised price of a booking. Amounts are in major currency units and
// are only rounded when converted for money transfer.
type PriceBreakdown struct {
	BasePrice               float64       `json:"basePrice"`
	YatrFee                 float64       `json:"yatrFee"`
	TaxBreakdown            []TaxLine     `json:"taxBreakdown"`
	TaxTotal                float64       `json:"taxTotal"`
	AdditionalServices      []ServiceLine `json:"additionalServices"`
	AdditionalServicesTotal float64       `json:"additionalServicesTotal"`
	ProcessingFee           float64       `json:"processingFee"`
	DeliveryCharge          float64       `json:"deliveryCharge"`
	TotalPrice              float64       `json:"totalPrice"`
}

// TotalMinorUnits converts the total price to minor currency units for the payment gateway.
func (b PriceBreakdown) TotalMinorUnits() int64 {
	return int64(math.Round(b.TotalPrice * 100))
}
