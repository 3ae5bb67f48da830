// Package metrics holds the engine's Prometheus instrumentation. Every
// component increments these collectors at its failure boundaries, so
// collaborator failures stay observable without ever reaching the
// transition logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycles counts completed sampling cycles.
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "cycles_total",
		Help:      "Completed sampling cycles.",
	})

	// CyclesAbandoned counts cycles that hit the cycle deadline with
	// workers still outstanding.
	CyclesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "cycles_abandoned_total",
		Help:      "Cycles whose deadline expired before all workers finished.",
	})

	// Samples counts evaluated samples by result (normal|warning|critical|unknown).
	Samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "samples_total",
		Help:      "Evaluated samples by severity result.",
	}, []string{"result"})

	// ProbeFailures counts collector failures, which evaluate as unknown.
	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "probe_failures_total",
		Help:      "Sample fetches that failed, by monitored key.",
	}, []string{"key"})

	// Transitions counts alert state transitions by kind.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "transitions_total",
		Help:      "Alert state transitions by kind.",
	}, []string{"kind"})

	// Escalations counts re-fired critical alerts.
	Escalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "escalations_total",
		Help:      "Escalation firings for unresolved critical alerts.",
	})

	// Notifications counts channel deliveries by channel name and result
	// (delivered|failed|breaker_open).
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "notifications_total",
		Help:      "Notification deliveries by channel and result.",
	}, []string{"channel", "result"})

	// Suppressed counts events held back by quiet hours.
	Suppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "notifications_suppressed_total",
		Help:      "Events suppressed by the quiet-hours policy.",
	})

	// RemediationAttempts counts attempts by outcome (success|failure|skipped).
	RemediationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "remediation_attempts_total",
		Help:      "Automatic remediation attempts by outcome.",
	}, []string{"outcome"})

	// ActiveAlerts tracks the active alert count per severity.
	ActiveAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulsewatch",
		Name:      "active_alerts",
		Help:      "Currently active alerts by severity.",
	}, []string{"severity"})

	// DispatcherDegraded is 1 while every notification channel breaker is open.
	DispatcherDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsewatch",
		Name:      "dispatcher_degraded",
		Help:      "1 while all notification channels are failing.",
	})

	// RecordDrops counts history records dropped because the writer queue
	// was full. Persistence never blocks alert processing.
	RecordDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsewatch",
		Name:      "history_dropped_total",
		Help:      "History records dropped due to writer backpressure.",
	})
)
