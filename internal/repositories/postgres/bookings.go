package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

// CustomerRepository persists customers.
type CustomerRepository struct {
	db *sqlx.DB
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

type customerRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *CustomerRepository) UpsertCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	var row customerRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO customers (id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), customers.phone)
		RETURNING id, name, email, phone, created_at`,
		customer.ID, customer.Name, strings.ToLower(strings.TrimSpace(customer.Email)), customer.Phone, customer.CreatedAt)
	if err != nil {
		return domain.Customer{}, classify("customers.upsert", err)
	}
	return domain.Customer{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

// BookingRepository persists bookings with their tax and service links in one transaction.
type BookingRepository struct {
	db *sqlx.DB
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type bookingRow struct {
	ID              string         `db:"id"`
	OrderID         sql.NullString `db:"order_id"`
	YachtID         string         `db:"yacht_id"`
	CustomerID      string         `db:"customer_id"`
	PriceTierID     sql.NullString `db:"price_tier_id"`
	StartAt         time.Time      `db:"start_at"`
	EndAt           time.Time      `db:"end_at"`
	Guests          int            `db:"guests"`
	BasePrice       float64        `db:"base_price"`
	YatrFee         float64        `db:"yatr_fee"`
	ProcessingFee   float64        `db:"processing_fee"`
	DeliveryCharge  float64        `db:"delivery_charge"`
	TotalPrice      float64        `db:"total_price"`
	BookingType     string         `db:"booking_type"`
	Status          string         `db:"status"`
	TermsAccepted   bool           `db:"terms_accepted"`
	PaymentAccepted bool           `db:"payment_accepted"`
	Inquiry         bool           `db:"inquiry"`
	Prepaid         bool           `db:"prepaid"`
	AffiliateID     sql.NullString `db:"affiliate_id"`
	StaticDetails   []byte         `db:"static_details"`
	CreatedAt       time.Time      `db:"created_at"`
}

type bookingServiceRow struct {
	BookingID string  `db:"booking_id"`
	ServiceID string  `db:"service_id"`
	Name      string  `db:"name"`
	Quantity  int     `db:"quantity"`
	UnitPrice float64 `db:"unit_price"`
	Total     float64 `db:"total"`
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// CreateBooking inserts the booking, its tax rule links and service lines. The unique index on
// order_id turns a second finalisation of the same order into a conflict error.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	details := []byte("{}")
	if len(booking.StaticDetails) > 0 {
		encoded, err := json.Marshal(booking.StaticDetails)
		if err != nil {
			return domain.Booking{}, fmt.Errorf("bookings.create: encode details: %w", err)
		}
		details = encoded
	}
	row := bookingRow{
		ID:              booking.ID,
		OrderID:         nullString(booking.OrderID),
		YachtID:         booking.YachtID,
		CustomerID:      booking.CustomerID,
		PriceTierID:     nullString(booking.PriceTierID),
		StartAt:         booking.Start,
		EndAt:           booking.End,
		Guests:          booking.Guests,
		BasePrice:       booking.BasePrice,
		YatrFee:         booking.YatrFee,
		ProcessingFee:   booking.ProcessingFee,
		DeliveryCharge:  booking.DeliveryCharge,
		TotalPrice:      booking.TotalPrice,
		BookingType:     string(booking.BookingType),
		Status:          string(booking.Status),
		TermsAccepted:   booking.TermsAccepted,
		PaymentAccepted: booking.PaymentAccepted,
		Inquiry:         booking.Inquiry,
		Prepaid:         booking.Prepaid,
		AffiliateID:     nullString(booking.AffiliateID),
		StaticDetails:   details,
		CreatedAt:       booking.CreatedAt,
	}

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO bookings (
				id, order_id, yacht_id, customer_id, price_tier_id, start_at, end_at, guests,
				base_price, yatr_fee, processing_fee, delivery_charge, total_price,
				booking_type, status, terms_accepted, payment_accepted, inquiry, prepaid,
				affiliate_id, static_details, created_at
			) VALUES (
				:id, :order_id, :yacht_id, :customer_id, :price_tier_id, :start_at, :end_at, :guests,
				:base_price, :yatr_fee, :processing_fee, :delivery_charge, :total_price,
				:booking_type, :status, :terms_accepted, :payment_accepted, :inquiry, :prepaid,
				:affiliate_id, :static_details, :created_at
			)`, row); err != nil {
			return err
		}
		for _, taxID := range booking.TaxRuleIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO booking_tax_rules (booking_id, tax_id) VALUES ($1, $2)`,
				booking.ID, taxID); err != nil {
				return err
			}
		}
		for _, line := range booking.Services {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO booking_services (booking_id, service_id, name, quantity, unit_price, total)
				VALUES (:booking_id, :service_id, :name, :quantity, :unit_price, :total)`,
				bookingServiceRow{
					BookingID: booking.ID,
					ServiceID: line.ServiceID,
					Name:      line.Name,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice,
					Total:     line.Total,
				}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Booking{}, classify("bookings.create", err)
	}
	return booking, nil
}

func (r *BookingRepository) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_id, yacht_id, customer_id, price_tier_id, start_at, end_at, guests,
			base_price, yatr_fee, processing_fee, delivery_charge, total_price,
			booking_type, status, terms_accepted, payment_accepted, inquiry, prepaid,
			affiliate_id, static_details, created_at
		FROM bookings
		WHERE order_id = $1`, orderID)
	if err != nil {
		return domain.Booking{}, classify("bookings.get_by_order", err)
	}

	var taxIDs []string
	if err := r.db.SelectContext(ctx, &taxIDs,
		`SELECT tax_id FROM booking_tax_rules WHERE booking_id = $1 ORDER BY tax_id`, row.ID); err != nil {
		return domain.Booking{}, classify("bookings.list_tax_rules", err)
	}
	var services []bookingServiceRow
	if err := r.db.SelectContext(ctx, &services, `
		SELECT booking_id, service_id, name, quantity, unit_price, total
		FROM booking_services
		WHERE booking_id = $1
		ORDER BY service_id`, row.ID); err != nil {
		return domain.Booking{}, classify("bookings.list_services", err)
	}

	booking := domain.Booking{
		ID:              row.ID,
		OrderID:         row.OrderID.String,
		YachtID:         row.YachtID,
		CustomerID:      row.CustomerID,
		PriceTierID:     row.PriceTierID.String,
		Start:           row.StartAt.UTC(),
		End:             row.EndAt.UTC(),
		Guests:          row.Guests,
		BasePrice:       row.BasePrice,
		YatrFee:         row.YatrFee,
		ProcessingFee:   row.ProcessingFee,
		DeliveryCharge:  row.DeliveryCharge,
		TotalPrice:      row.TotalPrice,
		BookingType:     domain.BookingType(row.BookingType),
		Status:          domain.BookingStatus(row.Status),
		TermsAccepted:   row.TermsAccepted,
		PaymentAccepted: row.PaymentAccepted,
		Inquiry:         row.Inquiry,
		Prepaid:         row.Prepaid,
		AffiliateID:     row.AffiliateID.String,
		TaxRuleIDs:      taxIDs,
		CreatedAt:       row.CreatedAt.UTC(),
	}
	if len(row.StaticDetails) > 0 {
		if err := json.Unmarshal(row.StaticDetails, &booking.StaticDetails); err != nil {
			return domain.Booking{}, fmt.Errorf("bookings.get_by_order: decode details: %w", err)
		}
	}
	for _, s := range services {
		booking.Services = append(booking.Services, domain.BookingServiceLine{
			ServiceID: s.ServiceID,
			Name:      s.Name,
			Quantity:  s.Quantity,
			UnitPrice: s.UnitPrice,
			Total:     s.Total,
		})
	}
	return booking, nil
}

// OperatorRepository reads operators and stores refreshed calendar tokens.
type OperatorRepository struct {
	db *sqlx.DB
}

var _ repositories.OperatorRepository = (*OperatorRepository)(nil)

func NewOperatorRepository(db *sqlx.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

type operatorRow struct {
	ID                   string         `db:"id"`
	Name                 string         `db:"name"`
	Email                string         `db:"email"`
	CalendarID           sql.NullString `db:"calendar_id"`
	AccessToken          sql.NullString `db:"access_token"`
	RefreshToken         sql.NullString `db:"refresh_token"`
	TokenExpiry          sql.NullTime   `db:"token_expiry"`
	CalendarSyncDisabled bool           `db:"calendar_sync_disabled"`
}

func (r *OperatorRepository) GetOperator(ctx context.Context, operatorID string) (domain.Operator, error) {
	var row operatorRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, email, calendar_id, access_token, refresh_token, token_expiry, calendar_sync_disabled
		FROM operators
		WHERE id = $1`, operatorID)
	if err != nil {
		return domain.Operator{}, classify("operators.get", err)
	}
	return domain.Operator{
		ID:                   row.ID,
		Name:                 row.Name,
		Email:                row.Email,
		CalendarID:           row.CalendarID.String,
		AccessToken:          row.AccessToken.String,
		RefreshToken:         row.RefreshToken.String,
		TokenExpiry:          row.TokenExpiry.Time,
		CalendarSyncDisabled: row.CalendarSyncDisabled,
	}, nil
}

func (r *OperatorRepository) UpdateCalendarToken(ctx context.Context, operatorID, accessToken, refreshToken string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE operators
		SET access_token = $2, refresh_token = $3, token_expiry = $4
		WHERE id = $1`, operatorID, accessToken, refreshToken, expiry)
	if err != nil {
		return classify("operators.update_calendar_token", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classify("operators.update_calendar_token", sql.ErrNoRows)
	}
	return nil
}
