// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package response_guard classifies and cleans model output before it
// reaches the user.
//
// Unlike the input side, risk here is binary: any issue at all is High.
// A response that leaks even once has already failed, so there is no
// medium ground worth distinguishing.
package response_guard

import (
	"github.com/ragward-ai/ragward/services/prompt_guard"
	"github.com/ragward-ai/ragward/services/ruleset"
)

// IssueKind distinguishes the two classes of response problems.
type IssueKind string

const (
	// IssueSecurityPattern is a regex match against a leakage phrasing.
	IssueSecurityPattern IssueKind = "security_pattern"
	// IssueProhibitedContent is a literal case-insensitive substring hit.
	IssueProhibitedContent IssueKind = "prohibited_content"
)

// Issue is one problem found in a response. MatchedValue is the rule id for
// pattern issues and the prohibited substring for content issues.
type Issue struct {
	Kind         IssueKind `json:"kind"`
	MatchedValue string    `json:"matched_value"`
}

// ValidationResult is the outcome of scanning one response.
type ValidationResult struct {
	IsValid   bool                   `json:"is_valid"`
	Issues    []Issue                `json:"security_issues"`
	RiskLevel prompt_guard.RiskLevel `json:"risk_level"`
}

// Validator scans model output for leakage phrasings and prohibited
// content. Stateless; safe for concurrent use.
type Validator struct {
	rules *ruleset.Provider
}

// NewValidator creates a Validator reading rules from the given provider.
func NewValidator(rules *ruleset.Provider) *Validator {
	return &Validator{rules: rules}
}

// Validate scans a response against the response patterns (regex) and the
// prohibited content list (case-insensitive literal matches).
//
// IsValid is true iff no issue of either kind is found. RiskLevel is High
// when any issue is found, else Low.
func (v *Validator) Validate(response string) ValidationResult {
	set := v.rules.Current()

	var issues []Issue
	for _, rule := range set.ResponsePatterns {
		if rule.Pattern().MatchString(response) {
			issues = append(issues, Issue{Kind: IssueSecurityPattern, MatchedValue: rule.Id})
		}
	}

	for i := range set.ProhibitedContent {
		item := &set.ProhibitedContent[i]
		if item.Pattern().MatchString(response) {
			issues = append(issues, Issue{Kind: IssueProhibitedContent, MatchedValue: item.Value})
		}
	}

	risk := prompt_guard.RiskLow
	if len(issues) > 0 {
		risk = prompt_guard.RiskHigh
	}
	return ValidationResult{
		IsValid:   len(issues) == 0,
		Issues:    issues,
		RiskLevel: risk,
	}
}

// Sanitize rewrites a response according to a prior validation result.
//
// Pattern issues are regex-replaced with the pattern marker; prohibited
// content is replaced through its compiled case-insensitive pattern with
// the redaction marker. Valid responses pass through untouched.
// Sanitization is idempotent: re-validating the output finds no further
// issues.
func (v *Validator) Sanitize(response string, validation ValidationResult) string {
	if validation.IsValid {
		return response
	}
	set := v.rules.Current()

	sanitized := response
	for _, issue := range validation.Issues {
		switch issue.Kind {
		case IssueSecurityPattern:
			for _, rule := range set.ResponsePatterns {
				if rule.Id == issue.MatchedValue {
					sanitized = rule.Pattern().ReplaceAllString(sanitized, set.Markers.Pattern)
				}
			}
		case IssueProhibitedContent:
			for i := range set.ProhibitedContent {
				item := &set.ProhibitedContent[i]
				if item.Value == issue.MatchedValue {
					sanitized = item.Pattern().ReplaceAllString(sanitized, set.Markers.Redaction)
				}
			}
		}
	}
	return sanitized
}
