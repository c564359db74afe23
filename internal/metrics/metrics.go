// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lsp"

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route"},
	)

	// Online path
	ActivitiesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fraud",
			Name:      "activities_processed_total",
			Help:      "Activities assessed, by recommendation",
		},
		[]string{"recommendation"},
	)

	FraudSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fraud",
			Name:      "signals_total",
			Help:      "Fraud signals raised, by type",
		},
		[]string{"type"},
	)

	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fraud",
			Name:      "risk_score",
			Help:      "Distribution of aggregated risk scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "alerts_triggered_total",
			Help:      "Alert rule results that triggered, by rule and outcome",
		},
		[]string{"rule", "outcome"},
	)

	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "Latency of the online activity path",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// Batch jobs
	DiscoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Pattern discovery runs, by result",
		},
		[]string{"result"},
	)

	PatternsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "patterns_total",
			Help:      "Validated patterns, by status",
		},
		[]string{"status"},
	)

	WellbeingAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wellbeing",
			Name:      "assessments_total",
			Help:      "Wellbeing assessments, by whether intervention was recommended",
		},
		[]string{"intervention"},
	)

	TrackedUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "tracked_users",
			Help:      "Users held in the in-memory profile store",
		},
		[]string{"tenant_id"},
	)
)

// BoolLabel renders a boolean as a label value.
func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
