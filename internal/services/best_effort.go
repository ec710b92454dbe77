package services

import (
	"context"
	"fmt"
	"maps"
	"time"
)

const sideEffectTimeout = 10 * time.Second

// Names of the best-effort side effects, used in logs, metrics and results.
const (
	EffectConfirmationEmail = "confirmation_email"
	EffectInternalAlert     = "internal_alert"
	EffectInquiryEmail      = "inquiry_acknowledgement"
	EffectCalendarEvent     = "calendar_event"
	EffectCRMLead           = "crm_lead"
	EffectBookingEvent      = "booking_event"
)

// BestEffortResult reports the outcome of a side effect that must never fail the primary flow.
type BestEffortResult struct {
	Name string
	Err  error
}

// OK reports whether the side effect succeeded.
func (r BestEffortResult) OK() bool { return r.Err == nil }

// BestEffort runs fn and captures its error or panic as a NotificationDeliveryError. It never
// propagates a failure to the caller.
func BestEffort(ctx context.Context, name string, fn func(context.Context) error) (result BestEffortResult) {
	result.Name = name
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Err = &NotificationDeliveryError{Effect: name, Err: fmt.Errorf("panic: %v", recovered)}
		}
	}()
	if err := fn(ctx); err != nil {
		result.Err = &NotificationDeliveryError{Effect: name, Err: err}
	}
	return result
}

// sideEffects runs best-effort work detached from the caller's cancellation and records failures.
type sideEffects struct {
	logger  func(ctx context.Context, event string, fields map[string]any)
	metrics Metrics
}

func (s sideEffects) run(ctx context.Context, name string, fields map[string]any, fn func(context.Context) error) BestEffortResult {
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	result := BestEffort(effectCtx, name, fn)
	if result.Err != nil {
		logged := make(map[string]any, len(fields)+2)
		maps.Copy(logged, fields)
		logged["effect"] = name
		logged["error"] = result.Err.Error()
		s.logger(ctx, "booking.side_effect_failed", logged)
		s.metrics.SideEffectFailed(name)
	}
	return result
}
