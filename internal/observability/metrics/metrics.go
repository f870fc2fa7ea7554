// Package metrics exposes prometheus instruments for governance decisions.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics exposes application-level instruments. A nil *Metrics is safe to
// call, so services can run without instrumentation in tests.
type Metrics struct {
	authorizeDecisions *prometheus.CounterVec
	limitDenials       *prometheus.CounterVec
	lockConflicts      prometheus.Counter
	lockOverrides      prometheus.Counter
	overageEvents      *prometheus.CounterVec
	cleanupReleased    prometheus.Counter
}

// NewRegistry builds the process registry with the standard collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// New registers the governance instruments on the registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		authorizeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftcv_authorize_decisions_total",
			Help: "Governance authorize outcomes by operation.",
		}, []string{"operation", "outcome"}),
		limitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftcv_limit_denials_total",
			Help: "Plan limit denials by check kind.",
		}, []string{"check"}),
		lockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftcv_lock_conflicts_total",
			Help: "Lock acquires refused because of a competing holder.",
		}),
		lockOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftcv_lock_overrides_total",
			Help: "Locks force-released by a higher priority acquire.",
		}),
		overageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftcv_overage_events_total",
			Help: "Overage allowances reported to billing.",
		}, []string{"counter_type"}),
		cleanupReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "craftcv_lock_cleanup_released_total",
			Help: "Expired locks released by the maintenance sweep.",
		}),
	}
	registry.MustRegister(
		m.authorizeDecisions,
		m.limitDenials,
		m.lockConflicts,
		m.lockOverrides,
		m.overageEvents,
		m.cleanupReleased,
	)
	return m
}

func (m *Metrics) RecordAuthorize(operation, outcome string) {
	if m == nil {
		return
	}
	m.authorizeDecisions.WithLabelValues(strings.TrimSpace(operation), outcome).Inc()
}

func (m *Metrics) RecordLimitDenial(check string) {
	if m == nil {
		return
	}
	m.limitDenials.WithLabelValues(check).Inc()
}

func (m *Metrics) RecordLockConflict() {
	if m == nil {
		return
	}
	m.lockConflicts.Inc()
}

func (m *Metrics) RecordLockOverride() {
	if m == nil {
		return
	}
	m.lockOverrides.Inc()
}

func (m *Metrics) RecordOverage(counterType string) {
	if m == nil {
		return
	}
	m.overageEvents.WithLabelValues(strings.TrimSpace(counterType)).Inc()
}

func (m *Metrics) RecordCleanupReleased(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.cleanupReleased.Add(float64(count))
}
