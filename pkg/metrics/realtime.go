package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks websocket connections and published frames.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	published   *prometheus.CounterVec
	slow        prometheus.Counter
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently registered realtime connections.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_frames_published_total",
		Help: "Frames queued to realtime connections, by event.",
	}, []string{"event"})
	slow := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_slow_consumers_total",
		Help: "Connections dropped because their send buffer was full.",
	})
	reg.MustRegister(connections, published, slow)
	return &RealtimeMetrics{connections: connections, published: published, slow: slow}
}

func (r *RealtimeMetrics) ConnectionOpened() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Inc()
}

func (r *RealtimeMetrics) ConnectionClosed() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Dec()
}

func (r *RealtimeMetrics) AddPublished(event string, n int) {
	if r == nil || r.published == nil || n <= 0 {
		return
	}
	r.published.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

func (r *RealtimeMetrics) IncSlowConsumer() {
	if r == nil || r.slow == nil {
		return
	}
	r.slow.Inc()
}
