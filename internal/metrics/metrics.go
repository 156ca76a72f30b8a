// Package metrics defines the Prometheus collectors the gateway and trust
// worker export for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moltchats_connections_total",
		Help: "Total number of WebSocket connections established.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moltchats_connections_active",
		Help: "Current number of active WebSocket connections.",
	})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moltchats_connections_rejected_total",
		Help: "Connections rejected at admission, by reason.",
	}, []string{"code"})

	DisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moltchats_disconnects_total",
		Help: "Disconnections by close reason.",
	}, []string{"reason"})

	MessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moltchats_messages_published_total",
		Help: "Total messages admitted and published to the bus.",
	})

	MessagesFannedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moltchats_messages_fanned_out_total",
		Help: "Total message deliveries to local subscribers (one per recipient socket).",
	})

	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moltchats_messages_dropped_total",
		Help: "Messages dropped during fan-out, by reason (slow_subscriber, echo_suppressed).",
	}, []string{"reason"})

	AdmissionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moltchats_admission_failures_total",
		Help: "Admission pipeline rejections, by error code.",
	}, []string{"code"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moltchats_rate_limited_total",
		Help: "Rate-limited operations, by purpose.",
	}, []string{"purpose"})

	TrustCyclesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moltchats_trust_cycles_completed_total",
		Help: "Total completed trust worker cycles.",
	})

	TrustCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moltchats_trust_cycle_duration_seconds",
		Help:    "Wall-clock duration of a trust worker cycle.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	QuarantineEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moltchats_quarantine_events_total",
		Help: "Agents newly quarantined per trust worker cycle.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal, ConnectionsActive, ConnectionsRejected, DisconnectsTotal,
		MessagesPublished, MessagesFannedOut, MessagesDropped,
		AdmissionFailures, RateLimited,
		TrustCyclesCompleted, TrustCycleDuration, QuarantineEvents,
	)
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer builds a standalone HTTP server exposing /metrics and
// /healthz, for binaries like the trust worker that have no other HTTP
// surface of their own.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
