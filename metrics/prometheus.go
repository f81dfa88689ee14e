// Package metrics provides a Prometheus-backed collector for error-handling outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements errorhandler.MetricsCollector with
// Prometheus counters and a histogram, labelled by route.
type PrometheusCollector struct {
	bypassed      *prometheus.CounterVec
	handled       *prometheus.CounterVec
	propagated    *prometheus.CounterVec
	redeliveries  *prometheus.CounterVec
	deadLettered  *prometheus.CounterVec
	faultDuration *prometheus.HistogramVec
}

// NewPrometheusCollector creates a collector registered with reg.
// A nil reg registers with the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		bypassed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errorhandler_exchanges_bypassed_total",
				Help: "Total number of transacted exchanges bypassed by the error handler",
			},
			[]string{"route"},
		),
		handled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errorhandler_failures_handled_total",
				Help: "Total number of failures resolved by an exception policy",
			},
			[]string{"route"},
		),
		propagated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errorhandler_failures_propagated_total",
				Help: "Total number of failures left active for the caller",
			},
			[]string{"route"},
		),
		redeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errorhandler_redeliveries_total",
				Help: "Total number of redelivery attempts",
			},
			[]string{"route"},
		),
		deadLettered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errorhandler_dead_lettered_total",
				Help: "Total number of exchanges routed to the dead-letter endpoint",
			},
			[]string{"route"},
		),
		faultDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "errorhandler_fault_stage_duration_seconds",
				Help: "Duration of fault-handling processor invocations in seconds",
			},
			[]string{"route"},
		),
	}
}

// ExchangeBypassed implements errorhandler.MetricsCollector
func (c *PrometheusCollector) ExchangeBypassed(routeID string) {
	c.bypassed.WithLabelValues(routeID).Inc()
}

// FailureHandled implements errorhandler.MetricsCollector
func (c *PrometheusCollector) FailureHandled(routeID string) {
	c.handled.WithLabelValues(routeID).Inc()
}

// FailurePropagated implements errorhandler.MetricsCollector
func (c *PrometheusCollector) FailurePropagated(routeID string) {
	c.propagated.WithLabelValues(routeID).Inc()
}

// RedeliveryAttempted implements errorhandler.MetricsCollector
func (c *PrometheusCollector) RedeliveryAttempted(routeID string) {
	c.redeliveries.WithLabelValues(routeID).Inc()
}

// DeadLettered implements errorhandler.MetricsCollector
func (c *PrometheusCollector) DeadLettered(routeID string) {
	c.deadLettered.WithLabelValues(routeID).Inc()
}

// FaultStageDuration implements errorhandler.MetricsCollector
func (c *PrometheusCollector) FaultStageDuration(routeID string, duration time.Duration) {
	c.faultDuration.WithLabelValues(routeID).Observe(duration.Seconds())
}
