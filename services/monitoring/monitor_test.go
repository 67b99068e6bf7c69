// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingSink always returns an error from Append.
type failingSink struct{ calls int }

func (s *failingSink) Append(ctx context.Context, event SecurityEvent) error {
	s.calls++
	return errors.New("disk full")
}

func TestMonitorPersistsEveryEvent(t *testing.T) {
	sink := NewBufferedSink()
	monitor := NewMonitor(sink, newTestDetector(newFakeClock()))

	monitor.Track(context.Background(), "alice", EventQueryRequest, map[string]any{"query_length": 12})
	monitor.Track(context.Background(), "alice", EventInputValidation, map[string]any{"risk_level": "Low"})

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventQueryRequest, events[0].Type)
	assert.Equal(t, EventInputValidation, events[1].Type)
	assert.Equal(t, "alice", events[0].UserID)
}

func TestMonitorAppendsDerivedAttackEvents(t *testing.T) {
	sink := NewBufferedSink()
	monitor := NewMonitor(sink, newTestDetector(newFakeClock()))

	highRisk := map[string]any{"risk_level": "High"}
	var signals []AttackSignal
	for i := 0; i < 3; i++ {
		signals = monitor.Track(context.Background(), "mallory", EventInputValidation, highRisk)
	}
	require.True(t, hasSignal(signals, AttackValidationFailures))

	attacks := sink.OfType(EventAttackDetected)
	require.Len(t, attacks, 1)
	assert.Equal(t, "mallory", attacks[0].UserID)
	assert.Equal(t, string(AttackValidationFailures), attacks[0].Payload["attack_type"])
	assert.Equal(t, string(SeverityHigh), attacks[0].Payload["severity"])

	// The derived event itself must not count toward the window heuristics:
	// the source events are 3 input_validation, so the sink holds exactly 4.
	assert.Len(t, sink.Events(), 4)
}

func TestMonitorSurvivesSinkFailure(t *testing.T) {
	sink := &failingSink{}
	monitor := NewMonitor(sink, newTestDetector(newFakeClock()))

	highRisk := map[string]any{"risk_level": "High"}
	var signals []AttackSignal
	for i := 0; i < 3; i++ {
		signals = monitor.Track(context.Background(), "mallory", EventInputValidation, highRisk)
	}

	// Detection still runs and still reports, even though nothing persisted.
	assert.True(t, hasSignal(signals, AttackValidationFailures))
	assert.Equal(t, 4, sink.calls, "every append is attempted despite failures")
}

func TestMonitorWithoutDetectorOnlyPersists(t *testing.T) {
	sink := NewBufferedSink()
	monitor := NewMonitor(sink, nil)

	highRisk := map[string]any{"risk_level": "High"}
	var signals []AttackSignal
	for i := 0; i < 5; i++ {
		signals = monitor.Track(context.Background(), "mallory", EventInputValidation, highRisk)
	}

	assert.Nil(t, signals, "no detector, no signals")
	assert.Len(t, sink.Events(), 5)
}

func TestMonitorAttackEventsDoNotFeedBack(t *testing.T) {
	sink := NewBufferedSink()
	clock := newFakeClock()
	cfg := DefaultDetectorConfig()
	cfg.Now = clock.Now
	cfg.RateLimitMax = 5
	detector := NewAttackDetector(cfg)
	monitor := NewMonitor(sink, detector)

	for i := 0; i < 10; i++ {
		monitor.Track(context.Background(), "alice", EventQueryRequest, nil)
	}

	// 10 tracked events; the window holds only those, never the derived
	// attack_detected events the sink received on top.
	window := detector.window("alice")
	window.mu.Lock()
	defer window.mu.Unlock()
	for _, event := range window.events {
		assert.NotEqual(t, EventAttackDetected, event.typ)
	}
	assert.Len(t, window.events, 10)
}
