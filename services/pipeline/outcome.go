// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs one query through the full defense sequence:
// input validation, sanitization, guarded retrieval, grounded generation,
// and response validation, with every decision tracked as a security event.
package pipeline

import (
	"github.com/ragward-ai/ragward/services/prompt_guard"
)

// Status is the terminal state of one pipeline run.
type Status string

const (
	// StatusAnswered means the query passed all defenses and got a
	// grounded, sanitized answer.
	StatusAnswered Status = "answered"

	// StatusRejected means input validation failed closed: nothing past
	// the validator ever saw the query.
	StatusRejected Status = "rejected"

	// StatusNoContext means retrieval returned nothing above the
	// similarity floor; the fixed no-information answer is returned and
	// the model is never called.
	StatusNoContext Status = "no_context"
)

// Reason codes attached to non-answered outcomes.
const (
	ReasonHighRiskInput     = "high_risk_input"
	ReasonNoRelevantContext = "no_relevant_context"
)

// Outcome is the explicit result of one pipeline run. Every terminal state
// is representable; there is no generic catch-all.
type Outcome struct {
	Status      Status                 `json:"status"`
	Answer      string                 `json:"answer,omitempty"`
	SourceCount int                    `json:"source_count"`
	Reason      string                 `json:"reason,omitempty"`
	RiskLevel   prompt_guard.RiskLevel `json:"risk_level"`

	// Sanitized reports whether the query was rewritten before retrieval.
	Sanitized bool `json:"sanitized"`
}

// Request is one user query entering the pipeline.
type Request struct {
	Query   string
	UserID  string
	TopK    int
	Filters map[string]any
}
