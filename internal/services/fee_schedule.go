package services

import "github.com/seaside-charters/api/internal/domain"

// FeeSchedule is the subset of a city's rules that apply to one booking type.
type FeeSchedule struct {
	Taxes            []domain.TaxRule
	RegistrationFees []domain.RegistrationFeeRule
}

// TaxRuleIDs lists the ids of the applicable taxes in rule order.
func (s FeeSchedule) TaxRuleIDs() []string {
	ids := make([]string, 0, len(s.Taxes))
	for _, tax := range s.Taxes {
		if tax.ID != "" {
			ids = append(ids, tax.ID)
		}
	}
	return ids
}

// ResolveFeeSchedule keeps the city rules whose booking type matches. Enquiry types use the rules of
// the paid type they would convert to. All matching rules apply, so rule order is preserved.
func ResolveFeeSchedule(city domain.City, bookingType domain.BookingType) FeeSchedule {
	kind := bookingType.Kind()
	schedule := FeeSchedule{
		Taxes:            make([]domain.TaxRule, 0, len(city.TaxRules)),
		RegistrationFees: make([]domain.RegistrationFeeRule, 0, len(city.RegistrationFeeRules)),
	}
	for _, tax := range city.TaxRules {
		if tax.BookingType == kind {
			schedule.Taxes = append(schedule.Taxes, tax)
		}
	}
	for _, fee := range city.RegistrationFeeRules {
		if fee.BookingType == kind {
			schedule.RegistrationFees = append(schedule.RegistrationFees, fee)
		}
	}
	return schedule
}
