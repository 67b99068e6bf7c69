// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"log/slog"
	"time"
)

// Monitor is the single entry point for recording pipeline decisions.
//
// Every Track call persists the event first, unconditionally; logging is
// never skipped, not even when attack signals are firing. Detection runs
// after persistence; each derived signal is itself persisted as a distinct
// attack_detected event (but not fed back into the detector windows). A
// Monitor built with a nil detector only persists and never raises signals.
type Monitor struct {
	sink     EventSink
	detector *AttackDetector
	now      func() time.Time
}

// NewMonitor creates a Monitor writing to sink and detecting over detector.
func NewMonitor(sink EventSink, detector *AttackDetector) *Monitor {
	now := time.Now
	if detector != nil && detector.cfg.Now != nil {
		now = detector.cfg.Now
	}
	return &Monitor{sink: sink, detector: detector, now: now}
}

// Track records one security event and returns any attack signals the
// updated user window now exhibits.
//
// Sink failures are logged and swallowed: persistence problems must never
// abort the request that produced the event. The sink is called outside
// any window lock, so a slow sink cannot stall other requests for the
// same user.
func (m *Monitor) Track(ctx context.Context, userID string, eventType EventType, payload map[string]any) []AttackSignal {
	event := SecurityEvent{
		Timestamp: m.now(),
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
	}
	if err := m.sink.Append(ctx, event); err != nil {
		slog.Error("Failed to persist a security event",
			"event_type", eventType, "user_id", userID, "error", err)
	}

	if m.detector == nil {
		return nil
	}

	signals := m.detector.Track(userID, eventType, payload)
	for _, signal := range signals {
		derived := SecurityEvent{
			Timestamp: m.now(),
			Type:      EventAttackDetected,
			UserID:    userID,
			Payload: map[string]any{
				"attack_type": string(signal.Type),
				"severity":    string(signal.Severity),
				"details":     signal.Details,
			},
		}
		if err := m.sink.Append(ctx, derived); err != nil {
			slog.Error("Failed to persist an attack_detected event",
				"attack_type", signal.Type, "user_id", userID, "error", err)
		}
		slog.Warn("Attack signal raised",
			"user_id", userID,
			"attack_type", signal.Type,
			"severity", signal.Severity,
			"details", signal.Details)
	}
	return signals
}
