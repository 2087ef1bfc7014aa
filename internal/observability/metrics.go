// README: Prometheus collectors shared by the HTTP layer, the live channel and the tracking coordinator.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zwanga",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RouteComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "route_computations_total", Help: "Route computations by outcome (provider, fallback)"},
		[]string{"outcome"},
	)
	RouteStaleDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "route_stale_discarded_total", Help: "Route responses discarded because a newer request superseded them"},
	)
	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "position_broadcast_failures_total", Help: "Swallowed position broadcast errors"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "zwanga", Name: "live_connections", Help: "Open live-position websocket connections"},
	)
	PositionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "position_updates_total", Help: "Position updates received by the live channel"},
		[]string{"result"},
	)
	DomainEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "zwanga", Name: "domain_events_total", Help: "Domain events published by sink"},
		[]string{"sink", "result"},
	)
)
