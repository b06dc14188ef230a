package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeropid_ticks_total",
			Help: "Total number of simulation ticks executed",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aeropid_tick_duration_seconds",
			Help:    "Time spent per simulation tick",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
	)

	CurrentAngle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aeropid_current_angle_degrees",
			Help: "Current simulated plant angle",
		},
	)

	TrackingError = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aeropid_tracking_error_degrees",
			Help: "Current angle error relative to the setpoint",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aeropid_connected_clients",
			Help: "Number of registered websocket observers",
		},
	)

	ClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeropid_clients_evicted_total",
			Help: "Clients evicted after missing heartbeats",
		},
	)

	BroadcastsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeropid_broadcasts_sent_total",
			Help: "Per-client broadcast deliveries that succeeded",
		},
	)

	BroadcastsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeropid_broadcasts_failed_total",
			Help: "Per-client broadcast deliveries that failed",
		},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeropid_commands_total",
			Help: "Commands executed by name and outcome",
		},
		[]string{"command", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeropid_http_requests_total",
			Help: "REST requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeropid_rate_limited_total",
			Help: "REST requests rejected by the per-IP rate limiter",
		},
	)
)
