package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит счетчики жизненного цикла соединения
type Metrics struct {
	OffersGenerated   prometheus.Counter
	OffersExpired     prometheus.Counter
	HandshakeFailures prometheus.Counter
	HistoryWipes      prometheus.Counter
	MessagesSent      prometheus.Counter
	SendFailures      prometheus.Counter
	MessagesReceived  prometheus.Counter
	LinkStatus        prometheus.Gauge
}

// NewMetrics создает метрики и регистрирует их в reg.
// При reg == nil метрики работают, но никуда не экспортируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OffersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "offers_generated_total",
			Help:      "Number of offer tokens successfully generated.",
		}),
		OffersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "offers_expired_total",
			Help:      "Number of offer tokens that reached their TTL.",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "handshake_failures_total",
			Help:      "Number of rejected offer or answer payloads.",
		}),
		HistoryWipes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "history_wipes_total",
			Help:      "Number of message history wipes after peer loss.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "messages_sent_total",
			Help:      "Number of messages acknowledged by the backend.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "send_failures_total",
			Help:      "Number of rolled back optimistic echoes.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secretchat",
			Name:      "messages_received_total",
			Help:      "Number of inbound message events.",
		}),
		LinkStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "secretchat",
			Name:      "link_status",
			Help:      "Current connection status (0 connected, 1 problem, 2 recovering, 3 disconnected, 4 failed).",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OffersGenerated,
			m.OffersExpired,
			m.HandshakeFailures,
			m.HistoryWipes,
			m.MessagesSent,
			m.SendFailures,
			m.MessagesReceived,
			m.LinkStatus,
		)
	}
	return m
}

// nopMetrics используется компонентами, которым метрики не передали
func nopMetrics() *Metrics {
	return NewMetrics(nil)
}
