// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DetectorConfig tunes the attack detector thresholds.
type DetectorConfig struct {
	// WindowCapacity bounds the number of events kept per user (FIFO).
	WindowCapacity int

	// RateLimitWindow is the trailing wall-clock span considered "recent".
	RateLimitWindow time.Duration

	// RateLimitMax is the event-count ceiling inside RateLimitWindow;
	// exceeding it (strictly) raises rate_limit_breach.
	RateLimitMax int

	// ValidationFailureThreshold is the number of High-risk
	// input_validation events that raises repeated_validation_failures.
	ValidationFailureThreshold int

	// ProbeQueryMin is the minimum number of vector_db_query events before
	// probing is considered at all.
	ProbeQueryMin int

	// ProbeLowResultMin is the number of those queries returning
	// ProbeLowResultCeiling results or fewer that raises vector_db_probing.
	ProbeLowResultMin int

	// ProbeLowResultCeiling is the "few results" boundary (inclusive).
	ProbeLowResultCeiling int

	// IdleUserTTL is how long an inactive user keeps a window before the
	// reaper removes it. Bounds total tracked users over time.
	IdleUserTTL time.Duration

	// Now is the clock; tests inject a fake one. Defaults to time.Now.
	Now func() time.Time
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WindowCapacity:             100,
		RateLimitWindow:            60 * time.Second,
		RateLimitMax:               30,
		ValidationFailureThreshold: 3,
		ProbeQueryMin:              10,
		ProbeLowResultMin:          5,
		ProbeLowResultCeiling:      1,
		IdleUserTTL:                30 * time.Minute,
		Now:                        time.Now,
	}
}

// windowEvent is the per-window record. Only the fields the detection
// heuristics read are kept; full events live in the sink.
type windowEvent struct {
	at      time.Time
	typ     EventType
	payload map[string]any
}

// userWindow is one user's bounded FIFO of recent events.
//
// Each window carries its own mutex so append-and-recompute serializes per
// user without blocking other users.
type userWindow struct {
	mu       sync.Mutex
	events   []windowEvent
	lastSeen time.Time
}

// AttackDetector maintains per-user sliding windows and derives attack
// signals from them.
//
// Signals are a recomputed view: every Track call rescans the whole window
// instead of keeping incremental counters. That costs O(window) per event
// but stays trivially correct under FIFO eviction. Safe for concurrent use.
type AttackDetector struct {
	cfg DetectorConfig

	mu      sync.RWMutex
	windows map[string]*userWindow
}

// NewAttackDetector creates a detector with the given thresholds. Zero or
// missing fields are filled from DefaultDetectorConfig.
func NewAttackDetector(cfg DetectorConfig) *AttackDetector {
	defaults := DefaultDetectorConfig()
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = defaults.WindowCapacity
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaults.RateLimitWindow
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = defaults.RateLimitMax
	}
	if cfg.ValidationFailureThreshold <= 0 {
		cfg.ValidationFailureThreshold = defaults.ValidationFailureThreshold
	}
	if cfg.ProbeQueryMin <= 0 {
		cfg.ProbeQueryMin = defaults.ProbeQueryMin
	}
	if cfg.ProbeLowResultMin <= 0 {
		cfg.ProbeLowResultMin = defaults.ProbeLowResultMin
	}
	if cfg.ProbeLowResultCeiling < 0 {
		cfg.ProbeLowResultCeiling = defaults.ProbeLowResultCeiling
	}
	if cfg.IdleUserTTL <= 0 {
		cfg.IdleUserTTL = defaults.IdleUserTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AttackDetector{
		cfg:     cfg,
		windows: make(map[string]*userWindow),
	}
}

// Track appends one event to the user's window and returns the attack
// signals derived from the updated window.
//
// The append and the rescan happen under the user's window lock, so
// concurrent requests for the same user serialize here while requests for
// different users proceed in parallel. No I/O happens under the lock.
func (d *AttackDetector) Track(userID string, eventType EventType, payload map[string]any) []AttackSignal {
	now := d.cfg.Now()
	window := d.window(userID)

	window.mu.Lock()
	defer window.mu.Unlock()

	window.lastSeen = now
	window.events = append(window.events, windowEvent{at: now, typ: eventType, payload: payload})
	if overflow := len(window.events) - d.cfg.WindowCapacity; overflow > 0 {
		window.events = window.events[overflow:]
	}

	return d.scan(window.events, now)
}

// window returns the user's window, creating it lazily on first use.
func (d *AttackDetector) window(userID string) *userWindow {
	d.mu.RLock()
	window, ok := d.windows[userID]
	d.mu.RUnlock()
	if ok {
		return window
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if window, ok = d.windows[userID]; ok {
		return window
	}
	window = &userWindow{}
	d.windows[userID] = window
	return window
}

// scan recomputes every attack signal from the current window contents.
// Caller holds the window lock.
func (d *AttackDetector) scan(events []windowEvent, now time.Time) []AttackSignal {
	var signals []AttackSignal

	var recentCount, validationFailures, vectorQueries, lowResultQueries int
	for _, event := range events {
		if now.Sub(event.at) > d.cfg.RateLimitWindow {
			continue
		}
		recentCount++

		switch event.typ {
		case EventInputValidation:
			if payloadString(event.payload, "risk_level") == "High" {
				validationFailures++
			}
		case EventVectorDBQuery:
			vectorQueries++
			if count, ok := payloadInt(event.payload, "results_count"); ok && count <= d.cfg.ProbeLowResultCeiling {
				lowResultQueries++
			}
		}
	}

	if recentCount > d.cfg.RateLimitMax {
		signals = append(signals, AttackSignal{
			Type:     AttackRateLimitBreach,
			Severity: SeverityMedium,
			Details:  fmt.Sprintf("%d events in %s", recentCount, d.cfg.RateLimitWindow),
		})
	}
	if validationFailures >= d.cfg.ValidationFailureThreshold {
		signals = append(signals, AttackSignal{
			Type:     AttackValidationFailures,
			Severity: SeverityHigh,
			Details:  fmt.Sprintf("%d high-risk validation failures", validationFailures),
		})
	}
	if vectorQueries >= d.cfg.ProbeQueryMin && lowResultQueries >= d.cfg.ProbeLowResultMin {
		signals = append(signals, AttackSignal{
			Type:     AttackVectorDBProbing,
			Severity: SeverityMedium,
			Details:  fmt.Sprintf("%d of %d vector queries returned %d results or fewer", lowResultQueries, vectorQueries, d.cfg.ProbeLowResultCeiling),
		})
	}
	return signals
}

// TrackedUsers reports how many user windows currently exist.
func (d *AttackDetector) TrackedUsers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.windows)
}

// RemoveIdle drops windows whose last event is older than the idle TTL and
// returns the number removed.
func (d *AttackDetector) RemoveIdle() int {
	now := d.cfg.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for userID, window := range d.windows {
		window.mu.Lock()
		idle := now.Sub(window.lastSeen) > d.cfg.IdleUserTTL
		window.mu.Unlock()
		if idle {
			delete(d.windows, userID)
			removed++
		}
	}
	return removed
}

// RunReaper removes idle user windows periodically until ctx is canceled.
// This bounds total tracked users independently of overall request volume.
func (d *AttackDetector) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = d.cfg.IdleUserTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := d.RemoveIdle(); removed > 0 {
				slog.Debug("Reaped idle user windows", "removed", removed)
			}
		}
	}
}

// payloadString fetches a string payload value, tolerating typed strings.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}

// payloadInt fetches an integer payload value, tolerating the numeric types
// JSON round-trips produce.
func payloadInt(payload map[string]any, key string) (int, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
