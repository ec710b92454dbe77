package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

// CatalogRepository reads the yacht catalogue and city fee schedules.
type CatalogRepository struct {
	db *sqlx.DB
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

type yachtRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Length     float64        `db:"length"`
	CityID     string         `db:"city_id"`
	OperatorID sql.NullString `db:"operator_id"`
}

type cityRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Currency string `db:"currency"`
}

type taxRow struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	Value       float64 `db:"value"`
	BookingType string  `db:"booking_type"`
}

type registrationFeeRow struct {
	ID          string  `db:"id"`
	FeeType     string  `db:"fee_type"`
	Value       float64 `db:"value"`
	BookingType string  `db:"booking_type"`
}

type priceTierRow struct {
	ID           string  `db:"id"`
	YachtID      string  `db:"yacht_id"`
	Amount       float64 `db:"amount"`
	DurationType string  `db:"duration_type"`
	DurationName string  `db:"duration_name"`
}

type serviceRow struct {
	ID    string  `db:"id"`
	Name  string  `db:"name"`
	Price float64 `db:"price"`
}

func (r *CatalogRepository) GetYacht(ctx context.Context, yachtID string) (domain.Yacht, error) {
	var row yachtRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, length, city_id, operator_id
		FROM yachts
		WHERE id = $1`, yachtID)
	if err != nil {
		return domain.Yacht{}, classify("catalog.get_yacht", err)
	}
	return domain.Yacht{
		ID:         row.ID,
		Name:       row.Name,
		Length:     row.Length,
		CityID:     row.CityID,
		OperatorID: row.OperatorID.String,
	}, nil
}

func (r *CatalogRepository) GetCity(ctx context.Context, cityID string) (domain.City, error) {
	var row cityRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name, currency FROM cities WHERE id = $1`, cityID); err != nil {
		return domain.City{}, classify("catalog.get_city", err)
	}

	var taxes []taxRow
	if err := r.db.SelectContext(ctx, &taxes, `
		SELECT id, name, value, booking_type
		FROM taxes
		WHERE city_id = $1
		ORDER BY name, id`, cityID); err != nil {
		return domain.City{}, classify("catalog.list_taxes", err)
	}

	var fees []registrationFeeRow
	if err := r.db.SelectContext(ctx, &fees, `
		SELECT id, fee_type, value, booking_type
		FROM yacht_registration_fees
		WHERE city_id = $1
		ORDER BY id`, cityID); err != nil {
		return domain.City{}, classify("catalog.list_registration_fees", err)
	}

	city := domain.City{ID: row.ID, Name: row.Name, Currency: row.Currency}
	for _, tax := range taxes {
		city.TaxRules = append(city.TaxRules, domain.TaxRule{
			ID:          tax.ID,
			Name:        tax.Name,
			Value:       tax.Value,
			BookingType: domain.BookingType(tax.BookingType),
		})
	}
	for _, fee := range fees {
		city.RegistrationFeeRules = append(city.RegistrationFeeRules, domain.RegistrationFeeRule{
			ID:          fee.ID,
			Type:        domain.FeeType(fee.FeeType),
			Value:       fee.Value,
			BookingType: domain.BookingType(fee.BookingType),
		})
	}
	return city, nil
}

// GetPriceTier parses the stored duration name into a DurationDescriptor once, here.
func (r *CatalogRepository) GetPriceTier(ctx context.Context, priceTierID string) (domain.PriceTier, error) {
	var row priceTierRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, yacht_id, amount, duration_type, duration_name
		FROM price_tiers
		WHERE id = $1`, priceTierID)
	if err != nil {
		return domain.PriceTier{}, classify("catalog.get_price_tier", err)
	}
	durationType := domain.DurationType(row.DurationType)
	return domain.PriceTier{
		ID:           row.ID,
		YachtID:      row.YachtID,
		Amount:       row.Amount,
		DurationType: durationType,
		DurationName: row.DurationName,
		Duration:     domain.ParseDurationName(durationType, row.DurationName),
	}, nil
}

func (r *CatalogRepository) GetAdditionalServices(ctx context.Context, ids []string) ([]domain.AdditionalService, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []serviceRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, price
		FROM additional_services
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, classify("catalog.get_additional_services", err)
	}
	services := make([]domain.AdditionalService, 0, len(rows))
	for _, row := range rows {
		services = append(services, domain.AdditionalService{ID: row.ID, Name: row.Name, Price: row.Price})
	}
	return services, nil
}
