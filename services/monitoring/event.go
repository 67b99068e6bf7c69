// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package monitoring records every pipeline decision as a structured
// security event and watches per-user event history for attack patterns.
//
// Events are append-only and immutable once created. Persistence goes
// through the EventSink interface; the in-process attack detector keeps a
// bounded sliding window per user and recomputes signals from scratch on
// every new event.
package monitoring

import (
	"time"
)

// EventType enumerates the pipeline decision points that produce events.
type EventType string

const (
	EventQueryRequest       EventType = "query_request"
	EventInputValidation    EventType = "input_validation"
	EventVectorDBQuery      EventType = "vector_db_query"
	EventResponseValidation EventType = "response_validation"
	EventQueryResponse      EventType = "query_response"
	EventQueryRejected      EventType = "query_rejected"
	EventAttackDetected     EventType = "attack_detected"
	EventSystemError        EventType = "system_error"
)

// SecurityEvent is one immutable, append-only record of a pipeline
// decision. Payload keys are event-type specific (risk_level, results_count,
// reason, error, ...).
type SecurityEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AttackType names a recognized attack pattern.
type AttackType string

const (
	AttackRateLimitBreach    AttackType = "rate_limit_breach"
	AttackValidationFailures AttackType = "repeated_validation_failures"
	AttackVectorDBProbing    AttackType = "vector_db_probing"
)

// Severity grades an attack signal.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AttackSignal is a derived view over the current event window. It is
// recomputed on every tracked event and never stored as mutable state;
// persistence happens only as a derived attack_detected SecurityEvent.
type AttackSignal struct {
	Type     AttackType `json:"type"`
	Severity Severity   `json:"severity"`
	Details  string     `json:"details"`
}
