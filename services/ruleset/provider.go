// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ruleset holds the compiled detection and replacement rules shared
// by the input, response, and retrieval defense stages.
//
// The rule set ships embedded in the binary (see the enforcement
// subpackage). Operators can override it with an on-disk YAML file; the
// Provider watches that file and swaps in a freshly compiled snapshot when
// it changes. Snapshots are immutable: a component reads Current() once per
// request and works against that snapshot for the whole call.
package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/ragward-ai/ragward/services/ruleset/enforcement"
)

// Embedded parses the rule set baked into the binary.
//
// Returns an error only if the embedded YAML is malformed, which indicates
// a broken build rather than a runtime condition.
func Embedded() (*Set, error) {
	set, err := Parse(enforcement.DefenseRules)
	if err != nil {
		return nil, fmt.Errorf("embedded rule file is invalid: %w", err)
	}
	return set, nil
}

// Provider hands out the current rule snapshot.
//
// Reads are lock-free (an atomic pointer swap), so validators on the hot
// path never contend with a reload.
type Provider struct {
	current atomic.Pointer[Set]
}

// NewProvider creates a Provider serving the given initial snapshot.
func NewProvider(initial *Set) *Provider {
	p := &Provider{}
	p.current.Store(initial)
	return p
}

// NewProviderFromFile loads the rule file at path, falling back to the
// embedded rules when path is empty.
func NewProviderFromFile(path string) (*Provider, error) {
	if path == "" {
		set, err := Embedded()
		if err != nil {
			return nil, err
		}
		return NewProvider(set), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the rule file %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rule file %s is invalid: %w", path, err)
	}
	return NewProvider(set), nil
}

// Current returns the active snapshot. The returned Set must be treated as
// read-only; callers keep it for at most one request.
func (p *Provider) Current() *Set {
	return p.current.Load()
}

// Watch reloads the rule file whenever it changes on disk, until ctx is
// canceled.
//
// A reload that fails to parse keeps the previous snapshot in place and
// logs a warning; the gateway never runs without a valid rule set. Editors
// that replace files via rename (vim, sed -i) emit Create/Rename events, so
// the watcher re-adds the path after such events.
func (p *Provider) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create the rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory so rename-based saves are observed.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.Info("Watching rule file for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.reload(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Rules watcher reported an error", "error", err)
		}
	}
}

// reload parses the file at path and swaps the snapshot on success.
func (p *Provider) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to re-read the rule file, keeping the previous rules",
			"path", path, "error", err)
		return
	}
	set, err := Parse(data)
	if err != nil {
		slog.Warn("Updated rule file is invalid, keeping the previous rules",
			"path", path, "error", err)
		return
	}
	p.current.Store(set)
	slog.Info("Reloaded the defense rules",
		"path", path,
		"injection_rules", len(set.InjectionRules),
		"response_patterns", len(set.ResponsePatterns),
		"prohibited_items", len(set.ProhibitedContent))
}
