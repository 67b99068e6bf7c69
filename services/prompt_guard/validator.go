// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt_guard validates and sanitizes raw user input before it is
// allowed anywhere near retrieval or generation.
//
// Validation is a pure classification: it never fails and never mutates
// anything. An input with no detections is a normal Low-risk result, not an
// error. Sanitization rewrites matched phrasings to a fixed placeholder so
// Medium-risk queries can still proceed with the attack surface removed.
package prompt_guard

import (
	"github.com/ragward-ai/ragward/services/ruleset"
)

// RiskLevel is the coarse classification of how likely an input is
// adversarial.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ValidationResult is the outcome of scanning one input.
//
// RiskLevel is always derived from the number of detections and is never
// set independently: 0 detections is Low, 1-2 is Medium, 3 or more is High.
type ValidationResult struct {
	IsValid    bool      `json:"is_valid"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Detections []string  `json:"detections"`
}

// riskFromCount maps a detection count onto a risk level. Keeping this a
// pure function is what makes the invariant testable.
func riskFromCount(n int) RiskLevel {
	switch {
	case n >= 3:
		return RiskHigh
	case n >= 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Validator classifies user input against the injection rules.
//
// Validator is stateless and safe for concurrent use; each call reads one
// immutable rule snapshot from the provider.
type Validator struct {
	rules *ruleset.Provider
}

// NewValidator creates a Validator reading rules from the given provider.
func NewValidator(rules *ruleset.Provider) *Validator {
	return &Validator{rules: rules}
}

// Validate scans input against every injection rule.
//
// Rules match independently (a single input can trigger several rules) and
// Detections preserves rule declaration order. Validate has no side effects
// and never fails.
func (v *Validator) Validate(input string) ValidationResult {
	set := v.rules.Current()

	var detections []string
	for _, rule := range set.InjectionRules {
		if rule.Pattern().MatchString(input) {
			detections = append(detections, rule.Id)
		}
	}

	return ValidationResult{
		IsValid:    len(detections) == 0,
		RiskLevel:  riskFromCount(len(detections)),
		Detections: detections,
	}
}
