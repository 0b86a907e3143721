// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the pgbridge gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// QueryBuckets defines histogram buckets suited for database-backed request
// latencies, ranging from 1ms to 30s.
var QueryBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgbridge_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgbridge_request_duration_seconds",
			Help:    "Request duration",
			Buckets: QueryBuckets,
		},
		[]string{"method"},
	)

	// SchemaReloadsTotal counts schema cache refreshes by outcome.
	SchemaReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgbridge_schema_reloads_total",
			Help: "Schema cache reloads",
		},
		[]string{"outcome"},
	)

	// DatabaseDown is 1 while the connection supervisor considers the
	// database unreachable.
	DatabaseDown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgbridge_database_down",
			Help: "Database unreachable",
		},
	)

	// ReconnectTriggersTotal counts requests that asked the connection
	// supervisor to probe the database after a transport failure.
	ReconnectTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pgbridge_reconnect_triggers_total",
			Help: "Reconnection triggers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SchemaReloadsTotal,
		DatabaseDown,
		ReconnectTriggersTotal,
	)
}
