package ws

import "github.com/prometheus/client_golang/prometheus"

// Metrics, hub'ın Prometheus metrikleri. nil *Metrics üzerindeki tüm
// metodlar no-op'tur; testlerde metrics olmadan Hub kurulabilir.
type Metrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
}

// NewMetrics, metrikleri oluşturur ve verilen registry'ye kaydeder.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventchat",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open live channel connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventchat",
			Subsystem: "ws",
			Name:      "events_sent_total",
			Help:      "Outbound live channel events by op.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.connections, m.events)
	return m
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) eventSent(op string) {
	if m != nil {
		m.events.WithLabelValues(op).Inc()
	}
}
