package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts registration submissions by result (created|invalid|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_registrations_total",
			Help: "Total number of registration submissions",
		},
		[]string{"result"},
	)

	// Cancellations counts cancel calls by result (cancelled|already_cancelled|not_found|error).
	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_cancellations_total",
			Help: "Total number of cancellation requests",
		},
		[]string{"result"},
	)

	// EmailDeliveries counts notification attempts by source (inline|worker) and result (sent|failed|queued).
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_email_deliveries_total",
			Help: "Total number of cancellation-link email attempts",
		},
		[]string{"source", "result"},
	)

	// AdminAuthFailures counts rejected admin tokens.
	AdminAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_admin_auth_failures_total",
			Help: "Total number of rejected admin tokens",
		},
	)

	// ActiveRegistrations tracks the last observed active count.
	ActiveRegistrations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_active_registrations",
			Help: "Number of active registrations at the last seat check",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
