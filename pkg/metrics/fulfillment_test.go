package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)

	m.IncAttempt(OutcomeDelivered)
	m.IncAttempt(OutcomeDelivered)
	m.IncAttempt(OutcomeSupplierError)
	m.ObserveSupplier("deliver", 120*time.Millisecond, nil)
	m.ObserveSupplier("deliver", 80*time.Millisecond, errors.New("boom"))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	delivered, err := fetchCounterValue(mfs, "fulfillment_attempts_total", "outcome", OutcomeDelivered)
	require.NoError(t, err)
	require.Equal(t, float64(2), delivered)

	failed, err := fetchCounterValue(mfs, "fulfillment_attempts_total", "outcome", OutcomeSupplierError)
	require.NoError(t, err)
	require.Equal(t, float64(1), failed)

	sum, err := fetchHistogramSum(mfs, "supplier_request_duration_seconds", "result", "error")
	require.NoError(t, err)
	require.InDelta(t, 0.08, sum, 0.0001)
}

func TestFulfillmentMetricsNilSafe(t *testing.T) {
	var m *FulfillmentMetrics
	m.IncAttempt(OutcomeDelivered)
	m.ObserveSupplier("deliver", time.Second, nil)

	empty := NewFulfillmentMetrics(nil)
	empty.IncAttempt(OutcomeNoCodes)
}
