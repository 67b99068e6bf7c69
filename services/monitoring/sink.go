// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"sync"
)

// EventSink persists security events.
//
// Sinks are append-only. A sink failure must never abort the request that
// produced the event; callers log the failure and continue. Implementations
// must be safe for concurrent use.
type EventSink interface {
	Append(ctx context.Context, event SecurityEvent) error
}

// NopSink discards all events. Useful when persistence is disabled.
type NopSink struct{}

// Append discards the event.
func (NopSink) Append(ctx context.Context, event SecurityEvent) error { return nil }

var _ EventSink = NopSink{}

// BufferedSink collects events in memory.
//
// Useful in tests to verify exactly which events a pipeline run produced:
//
//	sink := monitoring.NewBufferedSink()
//	monitor := monitoring.NewMonitor(sink, detector)
//	// ... exercise the pipeline ...
//	events := sink.Events()
type BufferedSink struct {
	mu     sync.Mutex
	events []SecurityEvent
}

// NewBufferedSink creates an empty BufferedSink.
func NewBufferedSink() *BufferedSink {
	return &BufferedSink{events: make([]SecurityEvent, 0, 16)}
}

// Append adds the event to the buffer.
func (s *BufferedSink) Append(ctx context.Context, event SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of all collected events in append order.
func (s *BufferedSink) Events() []SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns the collected events matching the given type, in order.
func (s *BufferedSink) OfType(eventType EventType) []SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecurityEvent
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

var _ EventSink = (*BufferedSink)(nil)
