package payments

import (
	"context"
	"errors"
	"time"
)

const (
	// EventCheckoutSessionCompleted is the only event type the finalizer acts on.
	EventCheckoutSessionCompleted = "checkout.session.completed"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrInvalidPayload is returned when a verified payload cannot be decoded.
	ErrInvalidPayload = errors.New("payments: invalid webhook payload")
)

// CheckoutLineItem is one line of a hosted checkout page.
type CheckoutLineItem struct {
	Name        string
	Description string
	Quantity    int64
	Amount      int64
	Currency    string
}

// CheckoutSessionRequest is the input for creating a hosted checkout session. Amounts are minor units.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession is the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// Event is a verified webhook event reduced to the fields the booking flow reads.
type Event struct {
	ID              string
	Type            string
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	Metadata        map[string]string
}

// Provider is implemented by PSP adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// VerifyEvent authenticates and decodes a raw webhook body. It must run before any other processing.
	VerifyEvent(ctx context.Context, payload []byte, signature string) (Event, error)
}
