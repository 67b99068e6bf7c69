// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt_guard

import (
	"github.com/ragward-ai/ragward/services/ruleset"
)

// SanitizationResult carries the rewritten text and the ids of every rule
// that fired. An empty AppliedRules list is a normal no-op, not an error.
type SanitizationResult struct {
	Sanitized    string   `json:"sanitized_input"`
	AppliedRules []string `json:"applied_rules"`
}

// Sanitizer rewrites risky input into a neutralized query.
//
// Sanitizer is stateless and safe for concurrent use. Each call reads one
// immutable rule snapshot, so the same input always produces the same
// output for a given snapshot even while operators edit the rule file.
type Sanitizer struct {
	rules *ruleset.Provider
}

// NewSanitizer creates a Sanitizer reading rules from the given provider.
func NewSanitizer(rules *ruleset.Provider) *Sanitizer {
	return &Sanitizer{rules: rules}
}

// Sanitize replaces every case-insensitive occurrence of each matching
// injection rule with the query marker and records the rule as applied.
//
// The marker itself matches no rule, so sanitization is idempotent:
// sanitizing already-sanitized text applies no rules.
func (s *Sanitizer) Sanitize(input string) SanitizationResult {
	set := s.rules.Current()

	sanitized := input
	var applied []string
	for _, rule := range set.InjectionRules {
		if rule.Pattern().MatchString(sanitized) {
			sanitized = rule.Pattern().ReplaceAllString(sanitized, set.Markers.Query)
			applied = append(applied, rule.Id)
		}
	}

	return SanitizationResult{
		Sanitized:    sanitized,
		AppliedRules: applied,
	}
}

// SafeQuery returns the text to forward to retrieval.
//
// Low-risk input passes through untouched. Anything else is sanitized and
// only the rewritten text is returned; High-risk input never reaches this
// point in the pipeline because the orchestrator rejects it first.
func (s *Sanitizer) SafeQuery(input string, validation ValidationResult) string {
	if validation.RiskLevel == RiskLow {
		return input
	}
	return s.Sanitize(input).Sanitized
}
