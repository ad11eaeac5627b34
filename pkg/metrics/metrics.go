package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Password policy metrics
	PasswordValidations *prometheus.CounterVec
	PasswordViolations  *prometheus.CounterVec

	// HTTP metrics
	ThrottledRequests *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PasswordValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "password",
			Name:      "validations_total",
			Help:      "Total number of password policy evaluations",
		}, []string{"outcome"}),
		PasswordViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "password",
			Name:      "violations_total",
			Help:      "Total number of password policy violations by rule",
		}, []string{"rule"}),

		ThrottledRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "throttled_requests_total",
			Help:      "Total number of requests rejected by a throttle policy",
		}, []string{"policy"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "status"}),
	}
}

// ObservePasswordCheck records one evaluation and the rules it failed.
func (m *Metrics) ObservePasswordCheck(valid bool, failedRules []string) {
	outcome := "rejected"
	if valid {
		outcome = "accepted"
	}
	m.PasswordValidations.WithLabelValues(outcome).Inc()
	for _, rule := range failedRules {
		m.PasswordViolations.WithLabelValues(rule).Inc()
	}
}
