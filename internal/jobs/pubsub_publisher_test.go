package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/seaside-charters/api/internal/domain"
)

func TestPubSubBookingPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "booking-confirmed")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubBookingPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubBookingPublisher: %v", err)
	}

	start := time.Date(2026, 7, 4, 14, 0, 0, 0, time.UTC)
	notification := domain.BookingNotification{
		Booking: domain.Booking{
			ID:          "bkg_1",
			OrderID:     "ord-1",
			YachtID:     "yacht-1",
			CustomerID:  "cus_1",
			BookingType: domain.BookingTypeSingleDay,
			Start:       start,
			End:         start.Add(4 * time.Hour),
		},
		City:      domain.City{Currency: "EUR"},
		Breakdown: domain.PriceBreakdown{TotalPrice: 1324.8},
	}

	if err := publisher.PublishBookingConfirmed(ctx, notification); err != nil {
		t.Fatalf("PublishBookingConfirmed: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload BookingConfirmedMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.BookingID != "bkg_1" || payload.OrderID != "ord-1" || payload.TotalPrice != 1324.8 || payload.Currency != "EUR" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.Start.Equal(start) {
		t.Fatalf("unexpected start %v", payload.Start)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord-1" {
		t.Fatalf("expected order id attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["event"]; attr != "booking.confirmed" {
		t.Fatalf("expected event attribute, got %q", attr)
	}
}

func TestNewPubSubBookingPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubBookingPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
