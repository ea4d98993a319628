package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptalk_active_sessions",
		Help: "Number of registered presence entries.",
	})
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptalk_messages_delivered_total",
		Help: "Private messages delivered to an online recipient.",
	})
	MessagesUndelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptalk_messages_undelivered_total",
		Help: "Private messages that resolved to no online recipient.",
	})
	PresenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptalk_presence_broadcasts_total",
		Help: "Full presence list fan-outs.",
	})
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptalk_persistence_failures_total",
		Help: "Message persistence attempts that returned an error.",
	})
)

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
