// Package metrics exposes Prometheus collectors for the chat relay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Message kinds used as label values for Messages.
const (
	KindRoom    = "room"
	KindPrivate = "private"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lobbychat_connections",
		Help: "Number of open transport connections",
	})

	OnlineIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lobbychat_online_identities",
		Help: "Number of identities with at least one connection",
	})

	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobbychat_messages_total",
			Help: "Messages persisted and delivered, by kind",
		},
		[]string{"kind"},
	)

	ReadReceipts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lobbychat_read_receipts_total",
		Help: "Newly recorded read receipts",
	})

	PrivateChatsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lobbychat_private_chats_expired_total",
		Help: "Private conversations closed by the inactivity sweep",
	})

	DroppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lobbychat_dropped_events_total",
		Help: "Outbound events dropped because a client buffer was full",
	})

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobbychat_persistence_failures_total",
			Help: "Storage failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(OnlineIdentities)
	prometheus.MustRegister(Messages)
	prometheus.MustRegister(ReadReceipts)
	prometheus.MustRegister(PrivateChatsExpired)
	prometheus.MustRegister(DroppedEvents)
	prometheus.MustRegister(PersistenceFailures)
}
