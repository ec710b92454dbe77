package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestCatalogRepository_GetPriceTierParsesDuration(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM price_tiers WHERE id = \\$1").
		WithArgs("tier-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "yacht_id", "amount", "duration_type", "duration_name"}).
			AddRow("tier-1", "yacht-1", 3000.0, "multi-day", "3 Night Package"))

	tier, err := repo.GetPriceTier(context.Background(), "tier-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DurationPackage, tier.Duration.Kind)
	assert.Equal(t, 3, tier.Duration.PackageNights)
	assert.Equal(t, 3000.0, tier.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetYachtNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM yachts WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetYacht(context.Background(), "missing")
	assert.True(t, repositories.IsNotFound(err))
}

func TestCatalogRepository_GetCityLoadsRules(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("SELECT id, name, currency FROM cities WHERE id = \\$1").
		WithArgs("miami").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "currency"}).AddRow("miami", "Miami", "USD"))
	mock.ExpectQuery("SELECT (.+) FROM taxes").
		WithArgs("miami").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "value", "booking_type"}).
			AddRow("tax-1", "Sales Tax", 7.0, "single-day").
			AddRow("tax-2", "Resort Tax", 2.0, "multi-day"))
	mock.ExpectQuery("SELECT (.+) FROM yacht_registration_fees").
		WithArgs("miami").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fee_type", "value", "booking_type"}).
			AddRow("fee-1", "percentage", 10.0, "single-day"))

	city, err := repo.GetCity(context.Background(), "miami")
	require.NoError(t, err)
	assert.Equal(t, "Miami", city.Name)
	require.Len(t, city.TaxRules, 2)
	assert.Equal(t, domain.BookingTypeMultiDay, city.TaxRules[1].BookingType)
	require.Len(t, city.RegistrationFeeRules, 1)
	assert.Equal(t, domain.FeeTypePercentage, city.RegistrationFeeRules[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetAdditionalServices(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM additional_services WHERE id = ANY\\(\\$1\\)").
		WithArgs(pq.Array([]string{"svc-1", "svc-2"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price"}).AddRow("svc-1", "Jet Ski", 150.0))

	services, err := repo.GetAdditionalServices(context.Background(), []string{"svc-1", "svc-2"})
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Jet Ski", services[0].Name)

	empty, err := repo.GetAdditionalServices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func sampleBooking() domain.Booking {
	return domain.Booking{
		ID:          "bk-1",
		OrderID:     "ord-1",
		YachtID:     "yacht-1",
		CustomerID:  "cust-1",
		PriceTierID: "tier-1",
		Start:       time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC),
		Guests:      4,
		BasePrice:   1000,
		YatrFee:     100,
		TotalPrice:  1280,
		BookingType: domain.BookingTypeSingleDay,
		Status:      domain.BookingStatusConfirmed,
		Prepaid:     true,
		TaxRuleIDs:  []string{"tax-1"},
		Services: []domain.BookingServiceLine{
			{ServiceID: "svc-1", Name: "Jet Ski", Quantity: 1, UnitPrice: 150, Total: 150},
		},
		StaticDetails: map[string]any{"notes": "birthday"},
		CreatedAt:     time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestBookingRepository_CreateBookingInsertsLinksInTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_tax_rules").
		WithArgs("bk-1", "tax-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_services").
		WithArgs("bk-1", "svc-1", "Jet Ski", 1, 150.0, 150.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, err := repo.CreateBooking(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.Equal(t, "bk-1", booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_DuplicateOrderIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"bookings_order_id_key\""})
	mock.ExpectRollback()

	_, err := repo.CreateBooking(context.Background(), sampleBooking())
	assert.True(t, repositories.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ConnectionFailureIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectBegin().WillReturnError(errors.Join(errors.New("dial tcp"), context.DeadlineExceeded))

	_, err := repo.CreateBooking(context.Background(), sampleBooking())
	assert.True(t, repositories.IsUnavailable(err))
}

func TestBookingRepository_GetBookingByOrderID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE order_id = \\$1").
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "yacht_id", "customer_id", "price_tier_id", "start_at", "end_at", "guests",
			"base_price", "yatr_fee", "processing_fee", "delivery_charge", "total_price",
			"booking_type", "status", "terms_accepted", "payment_accepted", "inquiry", "prepaid",
			"affiliate_id", "static_details", "created_at",
		}).AddRow(
			"bk-1", "ord-1", "yacht-1", "cust-1", "tier-1", created, created.Add(4*time.Hour), 4,
			1000.0, 100.0, 0.0, 0.0, 1280.0,
			"single-day", "confirmed", true, true, false, true,
			nil, []byte(`{"notes":"birthday"}`), created,
		))
	mock.ExpectQuery("SELECT tax_id FROM booking_tax_rules").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"tax_id"}).AddRow("tax-1"))
	mock.ExpectQuery("SELECT (.+) FROM booking_services").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "service_id", "name", "quantity", "unit_price", "total"}).
			AddRow("bk-1", "svc-1", "Jet Ski", 1, 150.0, 150.0))

	booking, err := repo.GetBookingByOrderID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.True(t, booking.Prepaid)
	assert.Equal(t, []string{"tax-1"}, booking.TaxRuleIDs)
	require.Len(t, booking.Services, 1)
	assert.Equal(t, "birthday", booking.StaticDetails["notes"])
	assert.Empty(t, booking.AffiliateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperatorRepository_UpdateCalendarToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOperatorRepository(db)
	expiry := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE operators").
		WithArgs("op-1", "access", "refresh", expiry).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateCalendarToken(context.Background(), "op-1", "access", "refresh", expiry))

	mock.ExpectExec("UPDATE operators").
		WithArgs("op-2", "access", "refresh", expiry).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateCalendarToken(context.Background(), "op-2", "access", "refresh", expiry)
	assert.True(t, repositories.IsNotFound(err))
}

func TestCustomerRepository_UpsertCustomerInsertsNewRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db)
	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	customer := domain.Customer{ID: "cust-1", Name: "Ana", Email: " Ana@Example.com", Phone: "+1305", CreatedAt: created}

	mock.ExpectQuery("INSERT INTO customers (.+) ON CONFLICT \\(email\\) DO UPDATE (.+) RETURNING").
		WithArgs("cust-1", "Ana", "ana@example.com", "+1305", created).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "created_at"}).
			AddRow("cust-1", "Ana", "ana@example.com", "+1305", created))

	got, err := repo.UpsertCustomer(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.ID)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_UpsertCustomerKeepsExistingID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db)
	firstSeen := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	retry := domain.Customer{ID: "cust-2", Name: "Ana Diaz", Email: "ana@example.com", CreatedAt: firstSeen.Add(time.Hour)}

	mock.ExpectQuery("INSERT INTO customers").
		WithArgs("cust-2", "Ana Diaz", "ana@example.com", "", retry.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "created_at"}).
			AddRow("cust-1", "Ana Diaz", "ana@example.com", "+1305", firstSeen))

	got, err := repo.UpsertCustomer(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.ID)
	assert.Equal(t, "+1305", got.Phone)
	assert.Equal(t, firstSeen, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_UpsertCustomerUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db)

	mock.ExpectQuery("INSERT INTO customers").WillReturnError(sql.ErrConnDone)

	_, err := repo.UpsertCustomer(context.Background(), domain.Customer{ID: "cust-1", Email: "ana@example.com"})
	assert.True(t, repositories.IsUnavailable(err))
}
