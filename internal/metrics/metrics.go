// Package metrics exposes Prometheus counters for the workflow engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's counters, bound to one registry so tests can
// build isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	TransitionsTotal      *prometheus.CounterVec
	TransitionFailures    *prometheus.CounterVec
	AssignmentCompletions prometheus.Counter
	NotifyFailures        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kaizen_transitions_total",
			Help: "Committed goal status transitions.",
		}, []string{"from", "to"}),
		TransitionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kaizen_transition_failures_total",
			Help: "Rejected transition requests by error kind.",
		}, []string{"kind"}),
		AssignmentCompletions: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaizen_assignment_completions_total",
			Help: "Assignee task completions (excluding idempotent repeats).",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaizen_notify_failures_total",
			Help: "Notification sink delivery failures.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
