// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the gateway.
//
// Metrics cover the defense pipeline's externally visible behavior:
// request outcomes, stage latency, attack signals, and rate-limited
// requests. Exposed via the /metrics endpoint; all operations are
// thread-safe through Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ragward"
const gatewaySubsystem = "gateway"

// GatewayMetrics holds all Prometheus metrics for the query path.
// Initialize once at startup via InitMetrics().
type GatewayMetrics struct {
	// RequestsTotal counts query requests by terminal outcome.
	// Labels: outcome (answered, no_context, rejected, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures full pipeline latency by outcome.
	// Labels: outcome
	RequestDurationSeconds *prometheus.HistogramVec

	// AttackSignalsTotal counts attack signals raised by the detector.
	// Labels: attack_type, severity
	AttackSignalsTotal *prometheus.CounterVec

	// RejectedQueriesTotal counts queries refused by input validation.
	// Labels: reason
	RejectedQueriesTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests refused at the edge limiter.
	RateLimitedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics creates and registers all gateway metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = &GatewayMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total query requests by terminal outcome",
			},
			[]string{"outcome"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "request_duration_seconds",
				Help:      "Full pipeline latency by outcome",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"outcome"},
		),

		AttackSignalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "attack_signals_total",
				Help:      "Attack signals raised by the detector",
			},
			[]string{"attack_type", "severity"},
		),

		RejectedQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "rejected_queries_total",
				Help:      "Queries refused by input validation",
			},
			[]string{"reason"},
		),

		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests refused by the edge rate limiter",
			},
		),
	}
	return DefaultMetrics
}

// RecordOutcome records one completed request.
func (m *GatewayMetrics) RecordOutcome(outcome string, seconds float64) {
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordRejection counts one refused query.
func (m *GatewayMetrics) RecordRejection(reason string) {
	m.RejectedQueriesTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimited counts one request stopped at the edge limiter.
func (m *GatewayMetrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}
