// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval_guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ragward-ai/ragward/services/llm"
	"github.com/ragward-ai/ragward/services/monitoring"
)

var tracer = otel.Tracer("ragward.retrieval_guard")

// AnonymousUser is the user id assigned to unauthenticated requests.
const AnonymousUser = "anonymous"

// GuardConfig tunes the retrieval guard's hard limits.
type GuardConfig struct {
	// TopKCeiling is the maximum number of matches any single search may
	// request, regardless of what the caller asked for.
	TopKCeiling int

	// DefaultTopK is used when the caller requests zero or fewer matches.
	DefaultTopK int

	// SimilarityFloor drops matches scoring below it. Scores are in [0, 1].
	SimilarityFloor float64

	// BaseFilters is the access predicate every search must satisfy. Its
	// keys cannot be overridden by callers.
	BaseFilters Filters
}

// DefaultGuardConfig returns the standard limits.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		TopKCeiling:     20,
		DefaultTopK:     5,
		SimilarityFloor: 0.7,
		BaseFilters:     Filters{"access_level": "public"},
	}
}

// EventTracker records security events. Satisfied by *monitoring.Monitor.
type EventTracker interface {
	Track(ctx context.Context, userID string, eventType monitoring.EventType, payload map[string]any) []monitoring.AttackSignal
}

// Guard wraps a VectorSearcher with mandatory access filtering, a top-k
// ceiling, and a similarity floor.
//
// Safe for concurrent use; the config is immutable after construction.
type Guard struct {
	cfg      GuardConfig
	embedder llm.Embedder
	searcher VectorSearcher
	monitor  EventTracker
}

// NewGuard creates a retrieval guard. Zero or missing config fields are
// filled from DefaultGuardConfig.
func NewGuard(cfg GuardConfig, embedder llm.Embedder, searcher VectorSearcher, monitor EventTracker) *Guard {
	defaults := DefaultGuardConfig()
	if cfg.TopKCeiling <= 0 {
		cfg.TopKCeiling = defaults.TopKCeiling
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaults.DefaultTopK
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = defaults.SimilarityFloor
	}
	if cfg.BaseFilters == nil {
		cfg.BaseFilters = defaults.BaseFilters
	}
	return &Guard{cfg: cfg, embedder: embedder, searcher: searcher, monitor: monitor}
}

// SecureQuery embeds the query and runs a guarded similarity search.
//
// The embedding is hashed and statistically checked before use; a vector
// that does not look like genuine model output is flagged in the returned
// metadata and in the tracked event so poisoning attempts leave a trail.
// The caller's filters may narrow the search with new property predicates,
// but any key also present in the base access filter keeps the base value.
// Non-anonymous users additionally get an allowed_users predicate so they
// only see documents shared with them. The requested topK is clamped to the
// ceiling, and matches below the similarity floor are dropped after the
// search. A vector_db_query event records the pre- and post-floor counts.
//
// A searcher failure returns ErrRetrievalUnavailable (wrapped): the caller
// must treat the request as failed, never as "no matches".
func (g *Guard) SecureQuery(ctx context.Context, query, userID string, topK int, userFilters Filters) (*RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "SecureQuery")
	defer span.End()

	vector, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed the query: %w", err)
	}

	embedding := EmbeddingMetadata{
		Hash:      embeddingHash(vector),
		Timestamp: time.Now().Unix(),
		Anomalous: anomalousEmbedding(vector),
	}
	if embedding.Anomalous {
		slog.Warn("Query embedding statistics look anomalous",
			"user_id", userID, "dimensions", len(vector), "embedding_hash", embedding.Hash)
	}

	applied := g.mergeFilters(userID, userFilters)
	limit := g.clampTopK(topK)

	matches, err := g.searcher.Search(ctx, vector, limit, applied)
	if err != nil {
		slog.Error("Vector search failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	kept := make([]Match, 0, len(matches))
	for _, match := range matches {
		if match.Similarity >= g.cfg.SimilarityFloor {
			kept = append(kept, match)
		}
	}

	if g.monitor != nil {
		g.monitor.Track(ctx, userID, monitoring.EventVectorDBQuery, map[string]any{
			"query_length":        len(query),
			"requested_topk":      topK,
			"applied_topk":        limit,
			"raw_count":           len(matches),
			"results_count":       len(kept),
			"embedding_anomalous": embedding.Anomalous,
		})
	}

	return &RetrievalResult{
		Results: kept,
		Metadata: SecurityMetadata{
			OriginalCount:  len(matches),
			FilteredCount:  len(kept),
			AppliedFilters: applied,
			Embedding:      embedding,
		},
	}, nil
}

// mergeFilters builds the effective filter set for one search. Base keys
// always win over caller-supplied values.
func (g *Guard) mergeFilters(userID string, userFilters Filters) Filters {
	merged := make(Filters, len(g.cfg.BaseFilters)+len(userFilters)+1)
	for key, value := range userFilters {
		merged[key] = value
	}
	for key, value := range g.cfg.BaseFilters {
		merged[key] = value
	}
	if userID != "" && userID != AnonymousUser {
		merged["allowed_users"] = userID
	}
	return merged
}

// clampTopK applies the default and the hard ceiling.
func (g *Guard) clampTopK(topK int) int {
	if topK <= 0 {
		topK = g.cfg.DefaultTopK
	}
	if topK > g.cfg.TopKCeiling {
		slog.Warn("Requested top_k exceeds the ceiling, clamping",
			"requested", topK, "ceiling", g.cfg.TopKCeiling)
		topK = g.cfg.TopKCeiling
	}
	return topK
}
