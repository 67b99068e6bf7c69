// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// eventKeyPrefix namespaces security events inside the Badger keyspace.
const eventKeyPrefix = "event/"

// BadgerConfig configures the embedded event log.
type BadgerConfig struct {
	// Path is the directory for the Badger files. Ignored when InMemory.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to a negative value to disable.
	GCInterval time.Duration
}

// DefaultBadgerConfig returns durable defaults for production use.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// BadgerEventSink persists security events to an embedded BadgerDB.
//
// Keys are time-ordered (nanosecond timestamp plus a UUID suffix for
// uniqueness under concurrent appends), so a prefix iteration replays the
// log in chronological order. Values are the JSON-encoded events.
type BadgerEventSink struct {
	db         *badger.DB
	gcInterval time.Duration
}

// NewBadgerEventSink opens (or creates) the event log at cfg.Path.
func NewBadgerEventSink(cfg BadgerConfig) (*BadgerEventSink, error) {
	// Badger rejects a directory path in disk-less mode.
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open the event log at %s: %w", cfg.Path, err)
	}

	gcInterval := cfg.GCInterval
	if gcInterval == 0 {
		gcInterval = 5 * time.Minute
	}
	return &BadgerEventSink{db: db, gcInterval: gcInterval}, nil
}

// Append implements EventSink.
func (s *BadgerEventSink) Append(ctx context.Context, event SecurityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal the event: %w", err)
	}
	key := fmt.Sprintf("%s%020d/%s", eventKeyPrefix, event.Timestamp.UnixNano(), uuid.NewString())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to append the event: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest events, newest first.
func (s *BadgerEventSink) Recent(limit int) ([]SecurityEvent, error) {
	var events []SecurityEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the last event key.
		seek := append([]byte(eventKeyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(eventKeyPrefix)); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var event SecurityEvent
				if err := json.Unmarshal(value, &event); err != nil {
					return err
				}
				events = append(events, event)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}
	return events, nil
}

// RunGC runs Badger value log garbage collection until ctx is canceled.
func (s *BadgerEventSink) RunGC(ctx context.Context) error {
	if s.gcInterval < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Repeat while GC makes progress; ErrNoRewrite means done.
			for {
				err := s.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						slog.Warn("Event log GC failed", "error", err)
					}
					break
				}
			}
		}
	}
}

// Close flushes and closes the underlying database.
func (s *BadgerEventSink) Close() error {
	return s.db.Close()
}

var _ EventSink = (*BadgerEventSink)(nil)
