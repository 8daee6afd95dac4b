package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_logins_total",
			Help: "Sign-in attempts by method and result.",
		},
		[]string{"method", "result"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "court_sessions_active",
			Help: "Session stores currently held in the registry.",
		},
	)

	RoomJoinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_room_joins_total",
			Help: "Room verify-and-join attempts by result.",
		},
		[]string{"result"},
	)

	RealtimeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "court_realtime_subscriptions",
			Help: "Open change-feed subscriptions.",
		},
	)

	RealtimeRefetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_realtime_refetches_total",
			Help: "Refetches triggered by change events.",
		},
		[]string{"table"},
	)

	RealtimeReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_realtime_reconnects_total",
			Help: "Change-feed reconnect attempts by result.",
		},
		[]string{"result"},
	)

	DraftsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_drafts_total",
			Help: "Draft store operations.",
		},
		[]string{"op"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_uploads_total",
			Help: "Object uploads by kind and result.",
		},
		[]string{"kind", "result"},
	)

	GeocoderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_geocoder_requests_total",
			Help: "Geocoder calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

// MustRegister exposes all collectors on the default registry with a constant
// service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		LoginsTotal,
		SessionsActive,
		RoomJoinsTotal,
		RealtimeSubscriptions,
		RealtimeRefetchesTotal,
		RealtimeReconnectsTotal,
		DraftsTotal,
		UploadsTotal,
		GeocoderRequestsTotal,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

// Result maps an error to the "success"/"failure" label.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
