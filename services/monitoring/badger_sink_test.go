// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemorySink(t *testing.T) *BadgerEventSink {
	t.Helper()
	sink, err := NewBadgerEventSink(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestBadgerSinkAppendAndRecent(t *testing.T) {
	sink := newMemorySink(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := sink.Append(context.Background(), SecurityEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      EventQueryRequest,
			UserID:    "alice",
			Payload:   map[string]any{"seq": i},
		})
		require.NoError(t, err)
	}

	events, err := sink.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, float64(2), events[0].Payload["seq"])
	assert.Equal(t, float64(1), events[1].Payload["seq"])
	assert.Equal(t, "alice", events[0].UserID)
	assert.True(t, events[0].Timestamp.After(events[1].Timestamp))
}

func TestBadgerSinkRecentUnlimited(t *testing.T) {
	sink := newMemorySink(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := sink.Append(context.Background(), SecurityEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      EventResponseValidation,
			UserID:    "bob",
		})
		require.NoError(t, err)
	}

	events, err := sink.Recent(0)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestBadgerSinkHonorsCanceledContext(t *testing.T) {
	sink := newMemorySink(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Append(ctx, SecurityEvent{
		Timestamp: time.Now(),
		Type:      EventQueryRequest,
		UserID:    "alice",
	})
	assert.ErrorIs(t, err, context.Canceled)
}
