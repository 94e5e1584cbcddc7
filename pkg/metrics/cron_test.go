package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsSplitsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("order-expiry", 250*time.Millisecond, nil)
	m.ObserveRun("order-expiry", 100*time.Millisecond, errors.New("db down"))
	m.ObserveRun("order-expiry", 50*time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := findMetric(mfs, "settlement_cron_job_runs_total", "job", "order-expiry", "result", resultSuccess)
	require.NoError(t, err)
	require.Equal(t, 2.0, ok.GetCounter().GetValue())

	failed, err := findMetric(mfs, "settlement_cron_job_runs_total", "job", "order-expiry", "result", resultFailure)
	require.NoError(t, err)
	require.Equal(t, 1.0, failed.GetCounter().GetValue())

	sum, err := fetchHistogramSum(mfs, "settlement_cron_job_duration_seconds", "job", "order-expiry")
	require.NoError(t, err)
	require.InDelta(t, 0.4, sum, 1e-9)

	last, err := findMetric(mfs, "settlement_cron_job_last_success_timestamp_seconds", "job", "order-expiry")
	require.NoError(t, err)
	require.Greater(t, last.GetGauge().GetValue(), 0.0)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	NewCronJobMetrics(nil).ObserveRun("", time.Second, errors.New("x"))
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncDelivery("order_created", DeliveryPublished)
	m.IncDelivery("order_created", DeliveryPublished)
	m.IncDelivery("payment_failed", DeliveryDeadLettered)
	m.ObservePublish("orders", 20*time.Millisecond)
	m.ObserveBatch(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	published, err := findMetric(mfs, "settlement_outbox_deliveries_total", "event_type", "order_created", "result", DeliveryPublished)
	require.NoError(t, err)
	require.Equal(t, 2.0, published.GetCounter().GetValue())

	dead, err := findMetric(mfs, "settlement_outbox_deliveries_total", "event_type", "payment_failed", "result", DeliveryDeadLettered)
	require.NoError(t, err)
	require.Equal(t, 1.0, dead.GetCounter().GetValue())

	batch, err := findMetric(mfs, "settlement_outbox_batch_rows")
	require.NoError(t, err)
	require.Equal(t, uint64(1), batch.GetHistogram().GetSampleCount())

	var nilMetrics *OutboxMetrics
	nilMetrics.IncDelivery("x", DeliveryRetry)
	nilMetrics.ObserveBatch(1)
}
