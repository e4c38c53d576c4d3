// Package metrics exposes Prometheus instrumentation for the bridge.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pushbridge"

// Metrics holds the bridge collectors.
type Metrics struct {
	deliveries  *prometheus.CounterVec
	stale       prometheus.Counter
	commands    *prometheus.CounterVec
	pending     prometheus.Gauge
	resolutions *prometheus.CounterVec
	violations  prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is handy for tests that only read values back.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Messages queued for the script runtime.",
		}, []string{"category", "keep_alive"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_deliveries_total",
			Help:      "Deliveries dropped because the handle was no longer registered.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by name and outcome.",
		}, []string{"command", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_pending",
			Help:      "Notifications awaiting a display decision.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_resolutions_total",
			Help:      "Resolved notifications by decision and cause.",
		}, []string{"decision", "cause"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Duplicate notification events and late directives.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.stale, m.commands, m.pending, m.resolutions, m.violations)
	}
	return m
}

// Delivered counts one queued message.
func (m *Metrics) Delivered(category string, keepAlive bool) {
	if m == nil {
		return
	}
	if category == "" {
		category = "result"
	}
	m.deliveries.WithLabelValues(category, strconv.FormatBool(keepAlive)).Inc()
}

// StaleDelivery counts a delivery to an unknown handle.
func (m *Metrics) StaleDelivery() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

// Command counts a resolved command. outcome is "ok" or a failure code.
func (m *Metrics) Command(name, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, outcome).Inc()
}

// SetPending records the number of notifications awaiting a decision.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// Resolved counts a notification resolution.
func (m *Metrics) Resolved(decision, cause string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(decision, cause).Inc()
}

// ProtocolViolation counts a rejected notification event or directive.
func (m *Metrics) ProtocolViolation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}
