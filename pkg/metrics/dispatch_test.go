package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDispatchMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.AddCreated("issue_created", 3)
	m.AddCreated("issue_created", 0)
	m.IncDelivery("realtime", OutcomeDelivered)
	m.IncDelivery("email", OutcomeFailed)
	m.IncDelivery("email", OutcomeFailed)
	m.IncDropped()
	m.SetQueueDepth(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "notifications_created_total", "kind", "issue_created"); err != nil || got != 3 {
		t.Fatalf("expected created=3, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "notification_deliveries_total", "channel", "email"); err != nil || got != 2 {
		t.Fatalf("expected email deliveries=2, got %f err=%v", got, err)
	}
	if got := singleValue(t, mfs, "notification_events_dropped_total").GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected dropped=1, got %f", got)
	}
	if got := singleValue(t, mfs, "notification_queue_depth").GetGauge().GetValue(); got != 7 {
		t.Fatalf("expected depth=7, got %f", got)
	}
}

func TestRealtimeMetricsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtimeMetrics(reg)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.AddPublished("new-comment", 2)
	m.IncSlowConsumer()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := singleValue(t, mfs, "realtime_connections").GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected 1 open connection, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "realtime_frames_published_total", "event", "new-comment"); err != nil || got != 2 {
		t.Fatalf("expected 2 published frames, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var d *DispatchMetrics
	d.AddCreated("x", 1)
	d.IncDelivery("email", OutcomeSkipped)
	d.IncDropped()
	d.SetQueueDepth(1)

	r := NewRealtimeMetrics(nil)
	r.ConnectionOpened()
	r.AddPublished("x", 1)
}

func singleValue(t *testing.T, mfs []*dto.MetricFamily, name string) *dto.Metric {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("metric %q not found or not scalar", name)
	}
	return mf.GetMetric()[0]
}
