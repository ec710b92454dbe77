package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/seaside-charters/api/internal/domain"
)

// BookingConfirmedMessage is the payload announced when a paid booking is confirmed.
type BookingConfirmedMessage struct {
	BookingID   string    `json:"bookingId"`
	OrderID     string    `json:"orderId"`
	YachtID     string    `json:"yachtId"`
	CustomerID  string    `json:"customerId"`
	BookingType string    `json:"bookingType"`
	TotalPrice  float64   `json:"totalPrice"`
	Currency    string    `json:"currency"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// PubSubBookingPublisher publishes booking-confirmed events to a Pub/Sub topic.
type PubSubBookingPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubBookingPublisher constructs a Pub/Sub backed booking event publisher.
func NewPubSubBookingPublisher(topic *pubsub.Topic) (*PubSubBookingPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub booking publisher: topic is required")
	}
	return &PubSubBookingPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishBookingConfirmed publishes the confirmed booking and waits for the server acknowledgement.
func (p *PubSubBookingPublisher) PublishBookingConfirmed(ctx context.Context, notification domain.BookingNotification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub booking publisher: not initialised")
	}

	booking := notification.Booking
	message := BookingConfirmedMessage{
		BookingID:   booking.ID,
		OrderID:     booking.OrderID,
		YachtID:     booking.YachtID,
		CustomerID:  booking.CustomerID,
		BookingType: string(booking.BookingType),
		TotalPrice:  notification.Breakdown.TotalPrice,
		Currency:    notification.Currency(),
		Start:       booking.Start.UTC(),
		End:         booking.End.UTC(),
		ConfirmedAt: booking.CreatedAt.UTC(),
	}
	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal booking confirmed: %w", err)
	}

	attrs := map[string]string{"event": "booking.confirmed"}
	setAttr(attrs, "bookingId", booking.ID)
	setAttr(attrs, "orderId", booking.OrderID)
	setAttr(attrs, "yachtId", booking.YachtID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish booking confirmed: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
