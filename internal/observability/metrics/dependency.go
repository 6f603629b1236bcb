package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

var breakerStates = []resilience.State{resilience.StateClosed, resilience.StateHalfOpen, resilience.StateOpen}

// dependencyMetrics implements resilience.Observer. Both process registries
// embed one so every executor reports the same series.
type dependencyMetrics struct {
	service string

	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
}

func newDependencyMetrics(service string) *dependencyMetrics {
	return &dependencyMetrics{
		service: service,
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Total retried calls to external dependencies.",
			},
			[]string{"service", "dependency", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Current circuit breaker state; 1 marks the active state.",
			},
			[]string{"service", "dependency", "state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Total circuit breaker transitions by target state.",
			},
			[]string{"service", "dependency", "state"},
		),
	}
}

func (d *dependencyMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(d.retriesTotal, d.breakerState, d.transitions)
}

func (d *dependencyMetrics) ObserveRetry(dependency, operation string) {
	d.retriesTotal.WithLabelValues(d.service, labelOrUnknown(dependency), labelOrUnknown(operation)).Inc()
}

func (d *dependencyMetrics) ObserveBreakerState(dependency string, state resilience.State) {
	dependency = labelOrUnknown(dependency)
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		d.breakerState.WithLabelValues(d.service, dependency, string(s)).Set(v)
	}
	d.transitions.WithLabelValues(d.service, dependency, string(state)).Inc()
}
