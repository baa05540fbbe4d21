package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TransportWS   = "ws"
	TransportHTTP = "http"
)

type Metrics struct {
	Connections   prometheus.Gauge
	MessagesSent  *prometheus.CounterVec
	Events        *prometheus.CounterVec
	SlowConsumers prometheus.Counter
}

// NewMetrics builds the chat collectors and registers them on reg. A nil reg
// yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rentchat",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentchat",
			Name:      "messages_sent_total",
			Help:      "Messages persisted, by transport.",
		}, []string{"transport"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentchat",
			Name:      "ws_events_total",
			Help:      "Inbound WebSocket events, by event and result.",
		}, []string{"event", "result"}),
		SlowConsumers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rentchat",
			Name:      "ws_slow_consumer_drops_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
	}
}
