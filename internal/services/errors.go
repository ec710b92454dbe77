package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed or missing booking input, including non-finite amounts.
	ErrValidation = errors.New("booking: invalid input")
	// ErrNotFound indicates a referenced yacht, city, price tier or service does not exist.
	ErrNotFound = errors.New("booking: not found")
	// ErrPaymentGateway indicates the checkout session could not be created.
	ErrPaymentGateway = errors.New("booking: payment gateway failure")
	// ErrInvalidSignature indicates a webhook failed authenticity checks.
	ErrInvalidSignature = errors.New("booking: invalid webhook signature")
	// ErrBookingIntentNotFound indicates the order has no pending intent, either because it
	// expired or because it was already consumed.
	ErrBookingIntentNotFound = errors.New("booking: intent not found")
	// ErrIntentCorrupt indicates the pending intent was consumed but could not be decoded. The order
	// cannot be finalised automatically.
	ErrIntentCorrupt = errors.New("booking: intent payload corrupt")
	// ErrUnavailable indicates a required dependency is unreachable. Callers may retry.
	ErrUnavailable = errors.New("booking: dependency unavailable")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// NotificationDeliveryError wraps a failed best-effort side effect.
type NotificationDeliveryError struct {
	Effect string
	Err    error
}

func (e *NotificationDeliveryError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("booking: %s delivery failed: %v", e.Effect, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
