package services

import (
	"math"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

const stayDay = 24 * time.Hour

// EffectiveBasePrice scales a tier amount to the requested stay. Single day tiers charge the tier
// amount whatever the window; multi day tiers are charged per night or as a package with a prorated
// overage. No rounding is applied.
func EffectiveBasePrice(tier domain.PriceTier, start, end time.Time) (float64, error) {
	if !isFiniteNonNegative(tier.Amount) {
		return 0, validationErrorf("price tier %q has an invalid amount", tier.ID)
	}
	if tier.DurationType != domain.DurationTypeMultiDay {
		return tier.Amount, nil
	}
	if end.Before(start) {
		return 0, validationErrorf("stay ends before it starts")
	}

	duration := tier.Duration
	if duration.Kind == "" {
		duration = domain.ParseDurationName(tier.DurationType, tier.DurationName)
	}

	nights := stayNights(start, end)
	switch duration.Kind {
	case domain.DurationNightly:
		return tier.Amount * float64(nights), nil
	case domain.DurationPackage:
		packageNights := duration.PackageNights
		if packageNights <= 0 || nights <= packageNights {
			return tier.Amount, nil
		}
		perNight := tier.Amount / float64(packageNights)
		return tier.Amount + perNight*float64(nights-packageNights), nil
	default:
		return tier.Amount, nil
	}
}

// stayNights is ceil((end-start) / 24h).
func stayNights(start, end time.Time) int {
	span := end.Sub(start)
	if span <= 0 {
		return 0
	}
	nights := int(span / stayDay)
	if span%stayDay != 0 {
		nights++
	}
	return nights
}

func isFiniteNonNegative(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && value >= 0
}
