// Package metrics exposes Prometheus counters for guard decisions, tanda
// validations and policy reloads. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conductores/onboarding-engine/internal/resilience"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	GuardDecisions   *prometheus.CounterVec
	TandaValidations *prometheus.CounterVec
	TandaRemote      *prometheus.HistogramVec
	PolicyReloads    *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GuardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_guard_decisions_total",
			Help: "Guard evaluations by guard and outcome",
		}, []string{"guard", "allowed"}),

		TandaValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_tanda_validations_total",
			Help: "Tanda validations by status and whether the local fallback was used",
		}, []string{"status", "fallback"}),

		TandaRemote: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_tanda_remote_duration_seconds",
			Help:    "Duration of calls to the tanda service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 10},
		}, []string{"call", "result"}), // result: "ok" or a resilience failure class

		PolicyReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_policy_reloads_total",
			Help: "Policy registrations by source and result",
		}, []string{"source", "result"}),
	}
}

// ObserveGuardDecision counts one guard evaluation.
func (m *Metrics) ObserveGuardDecision(guard string, allowed bool) {
	if m != nil {
		m.GuardDecisions.WithLabelValues(guard, strconv.FormatBool(allowed)).Inc()
	}
}

// ObserveTandaValidation counts one persisted validation.
func (m *Metrics) ObserveTandaValidation(status string, fallback bool) {
	if m != nil {
		m.TandaValidations.WithLabelValues(status, strconv.FormatBool(fallback)).Inc()
	}
}

// ObserveTandaRemote records the duration of a tanda service call.
func (m *Metrics) ObserveTandaRemote(call string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = resilience.Classify(err)
	}
	m.TandaRemote.WithLabelValues(call, result).Observe(elapsed.Seconds())
}

// ObservePolicyReload counts a policy registration attempt.
func (m *Metrics) ObservePolicyReload(source, result string) {
	if m != nil {
		m.PolicyReloads.WithLabelValues(source, result).Inc()
	}
}
