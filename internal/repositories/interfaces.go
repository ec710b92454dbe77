package repositories

import (
	"context"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads yachts, price tiers, city fee schedules and additional services.
type CatalogRepository interface {
	GetYacht(ctx context.Context, yachtID string) (domain.Yacht, error)
	// GetCity returns the city with its tax and registration fee rules attached.
	GetCity(ctx context.Context, cityID string) (domain.City, error)
	GetPriceTier(ctx context.Context, priceTierID string) (domain.PriceTier, error)
	// GetAdditionalServices returns the services matching ids. Unknown ids are omitted.
	GetAdditionalServices(ctx context.Context, ids []string) ([]domain.AdditionalService, error)
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	// UpsertCustomer stores the customer keyed by email and returns the persisted row. An existing
	// customer keeps its id and creation time; name and a non-empty phone are refreshed.
	UpsertCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error)
}

// BookingRepository persists bookings together with their tax and service links.
type BookingRepository interface {
	// CreateBooking inserts the booking atomically. A second booking for the same order id yields a
	// conflict error.
	CreateBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error)
	GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error)
}

// OperatorRepository reads yacht operators and stores refreshed calendar credentials.
type OperatorRepository interface {
	GetOperator(ctx context.Context, operatorID string) (domain.Operator, error)
	UpdateCalendarToken(ctx context.Context, operatorID, accessToken, refreshToken string, expiry time.Time) error
}

// HealthRepository reports the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
