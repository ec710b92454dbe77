package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/seaside-charters/api/internal/domain"
	"github.com/seaside-charters/api/internal/repositories"
)

const (
	defaultCalendarID = "primary"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	eventTimeZone     = "UTC"
)

// Config configures the Google Calendar adapter.
type Config struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	DefaultCalendarID string
	Operators         repositories.OperatorRepository
	Logger            func(ctx context.Context, event string, fields map[string]any)

	// HTTPClient is the base transport for token refreshes and API calls.
	HTTPClient *http.Client
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
}

// GoogleCalendar adds confirmed bookings to the yacht operator's Google calendar.
type GoogleCalendar struct {
	oauth             *oauth2.Config
	operators         repositories.OperatorRepository
	defaultCalendarID string
	httpClient        *http.Client
	endpoint          string
	logger            func(ctx context.Context, event string, fields map[string]any)
}

// NewGoogleCalendar validates the OAuth client configuration.
func NewGoogleCalendar(cfg Config) (*GoogleCalendar, error) {
	if cfg.Operators == nil {
		return nil, errors.New("calendar: operator repository is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("calendar: oauth client id and secret are required")
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	calendarID := strings.TrimSpace(cfg.DefaultCalendarID)
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &GoogleCalendar{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
			Scopes:       []string{gcal.CalendarEventsScope},
		},
		operators:         cfg.Operators,
		defaultCalendarID: calendarID,
		httpClient:        cfg.HTTPClient,
		endpoint:          strings.TrimSpace(cfg.Endpoint),
		logger:            logger,
	}, nil
}

// CreateBookingEvent inserts the booking into the operator's calendar. Yachts without an operator,
// operators without a linked calendar and operators who disabled sync are skipped without error.
func (c *GoogleCalendar) CreateBookingEvent(ctx context.Context, n domain.BookingNotification) error {
	operatorID := strings.TrimSpace(n.Yacht.OperatorID)
	if operatorID == "" {
		c.logger(ctx, "calendar.skipped", map[string]any{"reason": "no_operator", "yachtId": n.Yacht.ID})
		return nil
	}
	operator, err := c.operators.GetOperator(ctx, operatorID)
	if err != nil {
		if repositories.IsNotFound(err) {
			c.logger(ctx, "calendar.skipped", map[string]any{"reason": "operator_not_found", "operatorId": operatorID})
			return nil
		}
		return fmt.Errorf("calendar: load operator: %w", err)
	}
	if operator.CalendarSyncDisabled || strings.TrimSpace(operator.RefreshToken) == "" {
		c.logger(ctx, "calendar.skipped", map[string]any{"reason": "not_linked", "operatorId": operatorID})
		return nil
	}

	token, err := c.token(ctx, operator)
	if err != nil {
		return err
	}

	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	calendarID := strings.TrimSpace(operator.CalendarID)
	if calendarID == "" {
		calendarID = c.defaultCalendarID
	}
	created, err := svc.Events.Insert(calendarID, bookingEvent(n)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: insert event: %w", err)
	}
	c.logger(ctx, "calendar.event_created", map[string]any{
		"operatorId": operatorID,
		"bookingId":  n.Booking.ID,
		"eventId":    created.Id,
	})
	return nil
}

// token returns a valid access token, refreshing and persisting it when the stored one expired.
func (c *GoogleCalendar) token(ctx context.Context, operator domain.Operator) (*oauth2.Token, error) {
	stored := &oauth2.Token{
		AccessToken:  operator.AccessToken,
		RefreshToken: operator.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       operator.TokenExpiry,
	}
	current, err := c.oauth.TokenSource(c.clientContext(ctx), stored).Token()
	if err != nil {
		return nil, fmt.Errorf("calendar: refresh token: %w", err)
	}
	if current.AccessToken == operator.AccessToken {
		return current, nil
	}

	refreshToken := current.RefreshToken
	if refreshToken == "" {
		refreshToken = operator.RefreshToken
	}
	if err := c.operators.UpdateCalendarToken(ctx, operator.ID, current.AccessToken, refreshToken, current.Expiry); err != nil {
		// The fresh token is still usable for this event; the next booking refreshes again.
		c.logger(ctx, "calendar.token_persist_failed", map[string]any{"operatorId": operator.ID, "error": err.Error()})
	} else {
		c.logger(ctx, "calendar.token_refreshed", map[string]any{"operatorId": operator.ID})
	}
	return current, nil
}

func (c *GoogleCalendar) service(ctx context.Context, token *oauth2.Token) (*gcal.Service, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(c.clientContext(ctx), oauth2.StaticTokenSource(token))),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return svc, nil
}

func (c *GoogleCalendar) clientContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func bookingEvent(n domain.BookingNotification) *gcal.Event {
	booking := n.Booking
	customer := n.Customer
	event := &gcal.Event{
		Summary:     fmt.Sprintf("Charter: %s (%s)", n.Yacht.Name, customer.Name),
		Description: eventDescription(n),
		Start:       &gcal.EventDateTime{DateTime: booking.Start.UTC().Format(time.RFC3339), TimeZone: eventTimeZone},
		End:         &gcal.EventDateTime{DateTime: booking.End.UTC().Format(time.RFC3339), TimeZone: eventTimeZone},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{"bookingId": booking.ID, "orderId": booking.OrderID},
		},
	}
	if email := strings.TrimSpace(customer.Email); email != "" {
		event.Attendees = []*gcal.EventAttendee{{Email: email, DisplayName: customer.Name}}
	}
	return event
}

func eventDescription(n domain.BookingNotification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking %s\n", n.Booking.ID)
	if n.Booking.OrderID != "" {
		fmt.Fprintf(&b, "Order %s\n", n.Booking.OrderID)
	}
	fmt.Fprintf(&b, "Customer: %s <%s>", n.Customer.Name, n.Customer.Email)
	if n.Customer.Phone != "" {
		fmt.Fprintf(&b, ", %s", n.Customer.Phone)
	}
	fmt.Fprintf(&b, "\nGuests: %d\n", n.Booking.Guests)
	fmt.Fprintf(&b, "Total: %.2f %s", n.Breakdown.TotalPrice, n.Currency())
	return b.String()
}
