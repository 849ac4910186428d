package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "gossip_published_total",
			Help:      "Messages published on the gossip topic.",
		},
		[]string{"type"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "gossip_received_total",
			Help:      "Messages received on the gossip topic.",
		},
		[]string{"type"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "gossip_dropped_total",
			Help:      "Inbound payloads dropped before reaching the node actor.",
		},
		[]string{"reason"},
	)

	ResponsesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "directory_responses_stored_total",
			Help:      "Status responses folded into the peer directory.",
		},
	)

	DiscoveredPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peerscope",
			Name:      "discovered_peers",
			Help:      "Peers currently visible on the local network.",
		},
	)

	BeaconsSeen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "discovery_beacons_total",
			Help:      "Discovery beacons received.",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerscope",
			Name:      "admin_requests_total",
			Help:      "Total number of admin HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peerscope",
			Name:      "admin_request_duration_seconds",
			Help:      "Latency of admin HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "peerscope",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesPublished, MessagesReceived, MessagesDropped,
		ResponsesStored, DiscoveredPeers, BeaconsSeen,
		RequestsTotal, RequestDuration, uptime,
	)
}

// MetricsHandler exposes the registry. Mount it with
// r.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the given "op"
// label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
