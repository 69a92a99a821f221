// Package metrics exposes operational counters for the telemetry core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_monitor_ticks_total",
		Help: "Completed monitor ticks.",
	}, []string{"monitor"})

	TicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_monitor_ticks_skipped_total",
		Help: "Ticks skipped because the previous tick was still running.",
	}, []string{"monitor"})

	EntityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_monitor_entity_failures_total",
		Help: "Per-entity computations that failed and were skipped.",
	}, []string{"monitor"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_alerts_emitted_total",
		Help: "Alerts emitted after deduplication.",
	}, []string{"type", "severity"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_alerts_suppressed_total",
		Help: "Alerts suppressed inside their dedup window.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorypulse_broadcasts_total",
		Help: "Events fanned out through the hub.",
	}, []string{"event"})
)
