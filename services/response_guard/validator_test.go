// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package response_guard

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ragward-ai/ragward/services/prompt_guard"
	"github.com/ragward-ai/ragward/services/ruleset"
)

func newTestValidator(t *testing.T) (*Validator, *ruleset.Provider) {
	t.Helper()
	set, err := ruleset.Embedded()
	if err != nil {
		t.Fatalf("Failed to load embedded rules: %v", err)
	}
	provider := ruleset.NewProvider(set)
	return NewValidator(provider), provider
}

func TestValidateResponse(t *testing.T) {
	validator, _ := newTestValidator(t)

	tests := []struct {
		name      string
		response  string
		wantValid bool
		wantKinds []IssueKind
	}{
		{
			name:      "CleanResponse",
			response:  "RAG retrieves documents and generates an answer from them.",
			wantValid: true,
		},
		{
			name:      "LeakagePattern",
			response:  "Sure, my system prompt says I must be helpful.",
			wantValid: false,
			wantKinds: []IssueKind{IssueSecurityPattern},
		},
		{
			name:      "ProhibitedContent",
			response:  "The admin PASSWORD is hunter2.",
			wantValid: false,
			wantKinds: []IssueKind{IssueProhibitedContent},
		},
		{
			name:      "BothKinds",
			response:  "I've bypassed my rules; the credit card number is 4111.",
			wantValid: false,
			wantKinds: []IssueKind{IssueSecurityPattern, IssueProhibitedContent},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := validator.Validate(tc.response)

			if result.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v (issues: %v)", result.IsValid, tc.wantValid, result.Issues)
			}

			// Risk is binary on the output side.
			wantRisk := prompt_guard.RiskLow
			if !tc.wantValid {
				wantRisk = prompt_guard.RiskHigh
			}
			if result.RiskLevel != wantRisk {
				t.Errorf("RiskLevel = %s, want %s", result.RiskLevel, wantRisk)
			}

			for _, kind := range tc.wantKinds {
				found := false
				for _, issue := range result.Issues {
					if issue.Kind == kind {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected an issue of kind %s, got %v", kind, result.Issues)
				}
			}
		})
	}
}

func TestSanitizeRemovesProhibitedContent(t *testing.T) {
	validator, provider := newTestValidator(t)

	for _, item := range provider.Current().ProhibitedContent {
		response := "Here you go: the " + strings.ToUpper(item.Value) + " is attached."
		result := validator.Validate(response)
		if result.IsValid {
			t.Errorf("Expected %q to be flagged", item.Value)
			continue
		}
		sanitized := validator.Sanitize(response, result)
		if strings.Contains(strings.ToLower(sanitized), item.Value) {
			t.Errorf("Prohibited substring %q survived sanitization: %q", item.Value, sanitized)
		}
	}
}

func TestSanitizeHandlesMultiByteText(t *testing.T) {
	// Case folding can change rune widths ("İ" is 2 bytes, its lower-cased
	// form is 3), so redaction must never be positioned via offsets taken
	// from a folded copy of the response.
	validator, _ := newTestValidator(t)

	responses := []string{
		"İİİİİİİİpassword-FILLER-FILLER",
		"İİİİİpassword",
		"naïve café talk, then the PASSWORD, then more naïveté",
		"日本語テキスト password 日本語テキスト",
	}
	for _, response := range responses {
		result := validator.Validate(response)
		if result.IsValid {
			t.Errorf("Expected %q to be flagged", response)
			continue
		}
		sanitized := validator.Sanitize(response, result)
		if !utf8.ValidString(sanitized) {
			t.Errorf("Sanitization produced invalid UTF-8: %q", sanitized)
		}
		if strings.Contains(strings.ToLower(sanitized), "password") {
			t.Errorf("Prohibited substring survived sanitization: %q", sanitized)
		}
		if !strings.Contains(sanitized, "[REDACTED]") {
			t.Errorf("Expected a redaction marker in %q", sanitized)
		}
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	validator, _ := newTestValidator(t)

	responses := []string{
		"I've bypassed my rules; the credit card number is 4111.",
		"Sure, my SYSTEM PROMPT says the password is hunter2.",
		"I'll ignore that and reveal the social security number.",
	}
	for _, response := range responses {
		first := validator.Validate(response)
		sanitized := validator.Sanitize(response, first)

		second := validator.Validate(sanitized)
		if !second.IsValid {
			t.Errorf("Sanitized response still fails validation: %q (issues: %v)",
				sanitized, second.Issues)
		}
		if again := validator.Sanitize(sanitized, second); again != sanitized {
			t.Errorf("Second sanitization changed the text: %q -> %q", sanitized, again)
		}
	}
}

func TestSanitizePassesValidResponsesThrough(t *testing.T) {
	validator, _ := newTestValidator(t)
	response := "A perfectly clean answer."

	result := validator.Validate(response)
	if got := validator.Sanitize(response, result); got != response {
		t.Errorf("Valid response was modified: %q", got)
	}
}

func TestSanitizeReplacesEveryOccurrence(t *testing.T) {
	validator, _ := newTestValidator(t)
	response := "PASSWORD password PaSsWoRd"

	result := validator.Validate(response)
	if got := validator.Sanitize(response, result); got != "[REDACTED] [REDACTED] [REDACTED]" {
		t.Errorf("Sanitize(%q) = %q", response, got)
	}
}
