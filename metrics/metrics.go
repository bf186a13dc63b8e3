// Package metrics exposes the client's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"svcguard/circuitbreaker"
)

const namespace = "svcguard"

// Call outcomes, used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeFallback    = "fallback"
	OutcomeOpen        = "short_circuit"
	OutcomeUnavailable = "unavailable"
	OutcomeRateLimited = "rate_limited"
	OutcomeCanceled    = "canceled"
)

type Metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
	healthy      *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Service calls by logical service and outcome",
			},
			[]string{"service", "outcome"}),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of service call attempts that reached an instance",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"}),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit",
				Name:      "state",
				Help:      "State of the circuit breaker: 0 - closed; 1 - half open; 2 - open",
			},
			[]string{"service"}),
		healthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "healthy",
				Help:      "Last health check result: 1 - healthy; 0 - unhealthy",
			},
			[]string{"service", "instance"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.callDuration, m.circuitState, m.healthy} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveCall(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(service, outcome).Inc()
	if d > 0 {
		m.callDuration.WithLabelValues(service).Observe(d.Seconds())
	}
}

func (m *Metrics) SetHealth(service, instance string, healthy bool) {
	if m == nil {
		return
	}
	m.healthy.WithLabelValues(service, instance).Set(boolToFloat64(healthy))
}

// ForgetService drops every series of service once it is unregistered.
func (m *Metrics) ForgetService(service string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"service": service}
	m.healthy.DeletePartialMatch(labels)
	m.circuitState.DeletePartialMatch(labels)
}

// OnStateChange implements circuitbreaker.StateChangeListener.
func (m *Metrics) OnStateChange(service string, _, to circuitbreaker.State) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(service).Set(stateValue(to))
}

func stateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
