// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ruleset

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is a single detection rule as declared in the YAML rule file.
//
// The regex is compiled case-insensitively. For injection rules the match is
// also a replacement target: every occurrence is rewritten to the query
// marker during sanitization.
type Rule struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp `yaml:"-"`
}

// Pattern returns the compiled case-insensitive regex for the rule.
func (r *Rule) Pattern() *regexp.Regexp {
	return r.compiled
}

// Markers are the fixed placeholder tokens written into sanitized text.
type Markers struct {
	// Query replaces injection phrasings in sanitized user input.
	Query string `yaml:"query"`
	// Pattern replaces leakage phrasings in sanitized responses.
	Pattern string `yaml:"pattern"`
	// Redaction replaces prohibited substrings in sanitized responses.
	Redaction string `yaml:"redaction"`
}

// Prohibited is one literal substring that must never appear in a response.
//
// The match is case-insensitive. Detection and replacement both go through
// the compiled pattern: byte offsets computed on a case-folded copy of a
// string do not transfer back to the original (folding can change rune
// widths), so the literal is matched in place instead.
type Prohibited struct {
	Value string

	compiled *regexp.Regexp
}

// Pattern returns the compiled case-insensitive pattern for the literal.
func (p *Prohibited) Pattern() *regexp.Regexp {
	return p.compiled
}

// ruleFile mirrors the on-disk YAML layout.
type ruleFile struct {
	InjectionRules    []Rule   `yaml:"injection_rules"`
	ResponsePatterns  []Rule   `yaml:"response_patterns"`
	ProhibitedContent []string `yaml:"prohibited_content"`
	Markers           Markers  `yaml:"markers"`
}

// Set is a compiled, immutable snapshot of the defense rules.
//
// A Set is never mutated after Parse returns it. Components hold whichever
// snapshot they were given for the duration of a call, so sanitization stays
// referentially transparent even while an operator edits the rule file and
// the Provider swaps in a new snapshot.
type Set struct {
	// InjectionRules detect (and neutralize) adversarial phrasings in user
	// input, in declaration order.
	InjectionRules []Rule

	// ResponsePatterns detect leakage phrasings in model output, in
	// declaration order.
	ResponsePatterns []Rule

	// ProhibitedContent is the list of literal substrings that must never
	// appear in a response, each compiled into a case-insensitive pattern.
	ProhibitedContent []Prohibited

	// Markers are the placeholder tokens used by the sanitizers.
	Markers Markers
}

// Parse unmarshals and compiles a YAML rule file into an immutable Set.
//
// Every regex is compiled with the case-insensitive flag. Returns an error
// if the YAML is malformed, a regex does not compile, a rule id is missing
// or duplicated, or a marker is empty. A broken rule file fails fast rather
// than silently weakening the defense.
func Parse(data []byte) (*Set, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the rule file: %w", err)
	}

	if len(file.InjectionRules) == 0 {
		return nil, fmt.Errorf("rule file declares no injection rules")
	}
	if file.Markers.Query == "" || file.Markers.Pattern == "" || file.Markers.Redaction == "" {
		return nil, fmt.Errorf("rule file is missing one or more markers")
	}

	seen := make(map[string]bool)
	compile := func(rules []Rule, kind string) error {
		for i := range rules {
			rule := &rules[i]
			if rule.Id == "" {
				return fmt.Errorf("%s rule %d has no id", kind, i)
			}
			if seen[rule.Id] {
				return fmt.Errorf("duplicate rule id %q", rule.Id)
			}
			seen[rule.Id] = true
			re, err := regexp.Compile("(?i)" + rule.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex for %s: %w", rule.Id, err)
			}
			rule.compiled = re
		}
		return nil
	}
	if err := compile(file.InjectionRules, "injection"); err != nil {
		return nil, err
	}
	if err := compile(file.ResponsePatterns, "response"); err != nil {
		return nil, err
	}

	prohibited := make([]Prohibited, 0, len(file.ProhibitedContent))
	for i, item := range file.ProhibitedContent {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			return nil, fmt.Errorf("prohibited content entry %d is empty", i)
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(trimmed))
		if err != nil {
			return nil, fmt.Errorf("failed to compile the pattern for prohibited entry %d: %w", i, err)
		}
		prohibited = append(prohibited, Prohibited{Value: trimmed, compiled: re})
	}

	return &Set{
		InjectionRules:    file.InjectionRules,
		ResponsePatterns:  file.ResponsePatterns,
		ProhibitedContent: prohibited,
		Markers:           file.Markers,
	}, nil
}
