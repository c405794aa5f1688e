package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fulfillment outcomes recorded per attempt.
const (
	OutcomeDelivered     = "delivered"
	OutcomeSettleBlocked = "settle_blocked"
	OutcomeSupplierError = "supplier_error"
	OutcomeNoCodes       = "no_codes"
	OutcomeSkipped       = "skipped"
)

// FulfillmentMetrics tracks digital delivery attempts and supplier latency.
type FulfillmentMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_attempts_total",
		Help: "Digital fulfillment attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supplier_request_duration_seconds",
		Help:    "Latency of Supplier Hub calls in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"operation", "result"})
	reg.MustRegister(attempts, latency)
	return &FulfillmentMetrics{attempts: attempts, latency: latency}
}

func (m *FulfillmentMetrics) IncAttempt(outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSupplier records one supplier call; result is "ok" or "error".
func (m *FulfillmentMetrics) ObserveSupplier(operation string, duration time.Duration, err error) {
	if m == nil || m.latency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.latency.WithLabelValues(normalizeLabel(operation), result).Observe(duration.Seconds())
}
