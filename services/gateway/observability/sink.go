// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"context"

	"github.com/ragward-ai/ragward/services/monitoring"
)

// InstrumentedSink decorates an EventSink with Prometheus counters, so the
// pipeline and detector stay metrics-free. Attack signals reach it as
// derived attack_detected events and are counted by type and severity.
type InstrumentedSink struct {
	next    monitoring.EventSink
	metrics *GatewayMetrics
}

// NewInstrumentedSink wraps next with the given metrics.
func NewInstrumentedSink(next monitoring.EventSink, metrics *GatewayMetrics) *InstrumentedSink {
	return &InstrumentedSink{next: next, metrics: metrics}
}

// Append implements monitoring.EventSink.
func (s *InstrumentedSink) Append(ctx context.Context, event monitoring.SecurityEvent) error {
	if event.Type == monitoring.EventAttackDetected && s.metrics != nil {
		attackType, _ := event.Payload["attack_type"].(string)
		severity, _ := event.Payload["severity"].(string)
		s.metrics.AttackSignalsTotal.WithLabelValues(attackType, severity).Inc()
	}
	return s.next.Append(ctx, event)
}

var _ monitoring.EventSink = (*InstrumentedSink)(nil)
