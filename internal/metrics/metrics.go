// Package metrics holds the process's Prometheus instrumentation, exposed
// over /metrics in Prometheus exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every gauge and counter the core publishes. Only TickRate,
// MotionFraction, ActiveSessions and AcceleratorInUse are updated by the
// process; ReadySessions, FramesSentTotal, FramesDroppedTotal,
// OverridesAppliedTotal and OverridesDroppedTotal are registered but nothing
// updates them, so they stay at zero.
type Metrics struct {
	TickRate              prometheus.Gauge
	MotionFraction        prometheus.Gauge
	ActiveSessions        prometheus.Gauge
	ReadySessions         prometheus.Gauge
	FramesSentTotal       prometheus.Counter
	FramesDroppedTotal    prometheus.Counter
	AcceleratorInUse      prometheus.Gauge
	OverridesAppliedTotal prometheus.Counter
	OverridesDroppedTotal prometheus.Counter
}

// New creates and registers every metric against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers every metric against reg,
// letting callers (tests, or a process running multiple instances) avoid
// the global default registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TickRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphserver_tick_rate_hz",
			Help: "Current Scheduler tick rate in ticks per second.",
		}),
		MotionFraction: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphserver_motion_fraction",
			Help: "Fraction of active nodes exceeding the motion-estimator speed threshold, last tick.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphserver_sessions_active",
			Help: "Number of sessions currently connected.",
		}),
		ReadySessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphserver_sessions_ready",
			Help: "Number of sessions past handshake with binary delivery enabled.",
		}),
		FramesSentTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "graphserver_frames_sent_total",
			Help: "Total binary frames delivered to sessions.",
		}),
		FramesDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "graphserver_frames_dropped_total",
			Help: "Total binary frames coalesced away by a session's mailbox before delivery.",
		}),
		AcceleratorInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphserver_accelerator_in_use",
			Help: "Integrator backend in use: 0 = CPU, 1 = WASM accelerator.",
		}),
		OverridesAppliedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "graphserver_overrides_applied_total",
			Help: "Total client position overrides applied to the graph store.",
		}),
		OverridesDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "graphserver_overrides_dropped_total",
			Help: "Total client position overrides rejected or dropped.",
		}),
	}
}

// SetAcceleratorInUse records which Integrator backend is active.
func (m *Metrics) SetAcceleratorInUse(wasm bool) {
	if wasm {
		m.AcceleratorInUse.Set(1)
		return
	}
	m.AcceleratorInUse.Set(0)
}
