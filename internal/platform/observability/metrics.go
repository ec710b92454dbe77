package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	checkoutSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session attempts by result",
		},
		[]string{"result"},
	)

	bookingsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "finalized_total",
			Help:      "Payment webhook finalisation outcomes",
		},
		[]string{"result"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed after a booking was accepted",
		},
		[]string{"effect"},
	)
)

// BookingMetrics records booking workflow counters on the default Prometheus registry.
type BookingMetrics struct{}

// CheckoutSession counts a checkout attempt.
func (BookingMetrics) CheckoutSession(result string) {
	checkoutSessions.WithLabelValues(result).Inc()
}

// Finalized counts a webhook finalisation outcome.
func (BookingMetrics) Finalized(result string) {
	bookingsFinalized.WithLabelValues(result).Inc()
}

// SideEffectFailed counts a failed best-effort side effect.
func (BookingMetrics) SideEffectFailed(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
