// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval_guard mediates vector database access for the defense
// pipeline. Every search goes through a fixed access filter, a result-count
// ceiling, and a similarity floor; what the caller asks for can narrow the
// search but never widen it.
package retrieval_guard

import (
	"context"
	"errors"
)

// ErrRetrievalUnavailable indicates the vector database could not be
// reached. Fatal for the request that triggered it: the pipeline must not
// answer from an empty context it cannot distinguish from "no matches".
var ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")

// Match is one retrieved document with its similarity score in [0, 1].
type Match struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Filters is a conjunction of property predicates applied to a search.
// Keys are property names; values are the required property values.
type Filters map[string]any

// SecurityMetadata records what the guard did to a query, for auditing.
type SecurityMetadata struct {
	// OriginalCount is the number of matches the search returned before
	// the similarity floor was applied.
	OriginalCount int `json:"original_count"`

	// FilteredCount is the number of matches surviving the floor.
	FilteredCount int `json:"filtered_count"`

	// AppliedFilters is the merged filter set the search actually ran with.
	AppliedFilters Filters `json:"applied_filters"`

	// Embedding describes the query embedding the search ran with.
	Embedding EmbeddingMetadata `json:"embedding"`
}

// RetrievalResult is the outcome of one guarded search.
type RetrievalResult struct {
	Results  []Match          `json:"results"`
	Metadata SecurityMetadata `json:"security_metadata"`
}

// VectorSearcher executes a similarity search against the vector database.
//
// Implementations return matches with similarity scores in [0, 1] (higher is
// closer) and must be safe for concurrent use.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter Filters) ([]Match, error)
}
