package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes recorded per channel.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// DispatchMetrics tracks notification fan-out and per-channel delivery.
type DispatchMetrics struct {
	created  *prometheus.CounterVec
	delivery *prometheus.CounterVec
	dropped  prometheus.Counter
	depth    prometheus.Gauge
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notification records created, by kind.",
	}, []string{"kind"})
	delivery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_dropped_total",
		Help: "Domain events dropped because the dispatch queue was full.",
	})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Domain events waiting for a dispatch worker.",
	})
	reg.MustRegister(created, delivery, dropped, depth)
	return &DispatchMetrics{
		created:  created,
		delivery: delivery,
		dropped:  dropped,
		depth:    depth,
	}
}

// AddCreated counts n records created for kind.
func (d *DispatchMetrics) AddCreated(kind string, n int) {
	if d == nil || d.created == nil || n <= 0 {
		return
	}
	d.created.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

// IncDelivery records a single channel attempt.
func (d *DispatchMetrics) IncDelivery(channel, outcome string) {
	if d == nil || d.delivery == nil {
		return
	}
	d.delivery.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

// IncDropped counts an event rejected by a full queue.
func (d *DispatchMetrics) IncDropped() {
	if d == nil || d.dropped == nil {
		return
	}
	d.dropped.Inc()
}

// SetQueueDepth reports the number of buffered events.
func (d *DispatchMetrics) SetQueueDepth(n int) {
	if d == nil || d.depth == nil {
		return
	}
	d.depth.Set(float64(n))
}
