// Package observability holds the Prometheus metrics for the audit ledger.
//
// Metrics are registered on the default registry at init and exposed by the
// API server under /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/possuite/auditguard/internal/domain"
)

const namespace = "auditguard"

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerAppends counts entries appended, by log type.
var LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "appends_total",
	Help:      "Total ledger entries appended by log type.",
}, []string{"log_type"})

// LedgerAppendFailures counts appends that were rejected or failed to persist.
var LedgerAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "append_failures_total",
	Help:      "Total ledger appends that failed.",
})

// LedgerChainLength tracks the chain index of the current tip.
var LedgerChainLength = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "chain_length",
	Help:      "Chain index of the most recent ledger entry.",
})

// ─── Anomaly Metrics ────────────────────────────────────────────────────────

// AnomaliesDetected counts persisted anomalies by type and severity.
var AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "anomaly",
	Name:      "detected_total",
	Help:      "Total anomalies detected by type and severity.",
}, []string{"type", "severity"})

// AnomalyResolutions counts resolution events.
var AnomalyResolutions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "anomaly",
	Name:      "resolutions_total",
	Help:      "Total anomaly resolution events recorded.",
})

// DetectionRuns counts detection passes by trigger (api, cli, monitor).
var DetectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "anomaly",
	Name:      "detection_runs_total",
	Help:      "Total anomaly detection passes by trigger.",
}, []string{"trigger"})

// ─── Compliance Metrics ─────────────────────────────────────────────────────

// ReportsGenerated counts compliance reports by country and integrity outcome.
var ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "compliance",
	Name:      "reports_total",
	Help:      "Total compliance reports generated.",
}, []string{"country", "chain_integrity"})

// ─── Monitor Metrics ────────────────────────────────────────────────────────

// MonitorRuns counts real-time monitor ticks by outcome.
var MonitorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "monitor",
	Name:      "runs_total",
	Help:      "Total real-time monitor ticks by outcome (ok, alert, error, skipped).",
}, []string{"outcome"})

// ─── Helpers ────────────────────────────────────────────────────────────────

// RecordAnomalies increments AnomaliesDetected for each finding.
func RecordAnomalies(anomalies []domain.Anomaly) {
	for _, a := range anomalies {
		AnomaliesDetected.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

// RecordAppend updates the ledger metrics after a successful append.
func RecordAppend(e domain.LedgerEntry) {
	LedgerAppends.WithLabelValues(string(e.LogType)).Inc()
	LedgerChainLength.Set(float64(e.ChainIndex))
}
