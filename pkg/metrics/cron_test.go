package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("fulfillment-sweep", 250*time.Millisecond, nil)
	m.ObserveRun("fulfillment-sweep", 100*time.Millisecond, errors.New("supplier down"))
	m.ObserveRun("fulfillment-sweep", 50*time.Millisecond, nil)
	m.CycleSkipped()

	if got := testutil.ToFloat64(m.runs.WithLabelValues("fulfillment-sweep", ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 successes, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("fulfillment-sweep", ResultFailure)); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.skipped); got != 1 {
		t.Fatalf("expected 1 skipped cycle, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("fulfillment-sweep")); got <= 0 {
		t.Fatalf("expected last success timestamp, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "fulfillment-sweep"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.39 {
		t.Fatalf("expected duration sum ~0.4, got %f", got)
	}
}

func TestCronJobMetricsLabelsUnnamedJobs(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.ObserveRun("", time.Millisecond, nil)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("unknown", ResultSuccess)); got != 1 {
		t.Fatalf("expected unnamed run under unknown, got %f", got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.CycleSkipped()
	NewCronJobMetrics(nil).ObserveRun("job", time.Second, errors.New("boom"))
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
