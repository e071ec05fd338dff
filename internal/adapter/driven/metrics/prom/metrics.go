package prom

import (
	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callbridge"

// Metrics implements port.Metrics on top of Prometheus collectors.
type Metrics struct {
	sessionTransitions    *prometheus.CounterVec
	permissionTransitions *prometheus.CounterVec
	events                *prometheus.CounterVec
	staleResults          *prometheus.CounterVec
	commandFailures       *prometheus.CounterVec
	callsActive           prometheus.Gauge
}

// New registers the bridge collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Call session lifecycle transitions.",
		}, []string{"from", "to"}),
		permissionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "transitions_total",
			Help:      "Permission state transitions per capability.",
		}, []string{"capability", "from", "to"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Lifecycle events handed to listeners.",
		}, []string{"event"}),
		staleResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Asynchronous results discarded because the session moved on.",
		}, []string{"source"}),
		commandFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_failures_total",
			Help:      "Bridge commands that returned an error, by wire code.",
		}, []string{"command", "code"}),
		callsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Sessions currently in the active state.",
		}),
	}
}

func (m *Metrics) SessionTransition(from, to domain.LifecycleState) {
	m.sessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if to == domain.StateActive {
		m.callsActive.Inc()
	}
	if from == domain.StateActive {
		m.callsActive.Dec()
	}
}

func (m *Metrics) PermissionTransition(c domain.Capability, from, to domain.PermissionState) {
	m.permissionTransitions.WithLabelValues(string(c), from.String(), to.String()).Inc()
}

func (m *Metrics) EventEmitted(kind domain.EventKind) {
	m.events.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) StaleResultDiscarded(source string) {
	m.staleResults.WithLabelValues(source).Inc()
}

func (m *Metrics) CommandFailed(command string, code domain.Code) {
	m.commandFailures.WithLabelValues(command, string(code)).Inc()
}
