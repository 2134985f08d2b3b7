// Package metrics provides Prometheus metrics for Sentinel (HTTP RED, alerts, scans, remediation).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinel"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// AlertsStoredTotal counts stored alerts by type and severity.
	AlertsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_stored_total",
			Help:      "Total number of security alerts stored.",
		},
		[]string{"type", "severity"},
	)

	// AlertTransitionsTotal counts status changes by target status.
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Total number of alert status transitions.",
		},
		[]string{"status"},
	)

	// ScanDurationSeconds is scan latency.
	ScanDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Security scan duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	// ScanFindingsTotal counts vulnerabilities found by severity.
	ScanFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_findings_total",
			Help:      "Total number of vulnerabilities found by scans.",
		},
		[]string{"severity"},
	)

	// RemediationsTotal counts remediation attempts by action and result.
	RemediationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Total number of remediation attempts.",
		},
		[]string{"action", "result"},
	)

	// MiddlewareBlocksTotal counts requests rejected by the security middleware.
	MiddlewareBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "middleware_blocks_total",
			Help:      "Total number of requests rejected by security middleware.",
		},
		[]string{"reason"},
	)

	// WebSocketConnectionsActive is current number of alert stream clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active alert stream connections.",
		},
	)
)
