// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval_guard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateSearcher implements VectorSearcher against a Weaviate instance.
//
// Searches use GraphQL nearVector with the filter set compiled into an
// AND-combined where clause. Certainty is requested instead of distance so
// similarity scores are always in [0, 1] regardless of the distance metric.
//
// Safe for concurrent use; the underlying client pools connections.
type WeaviateSearcher struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateSearcher creates a searcher over the given document class.
func NewWeaviateSearcher(client *weaviate.Client, className string) *WeaviateSearcher {
	if className == "" {
		className = "Document"
	}
	return &WeaviateSearcher{client: client, className: className}
}

// documentQueryResponse mirrors the GraphQL Get response shape for the
// document class. The class name is substituted at decode time.
type documentQueryResponse struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Additional struct {
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// Search implements VectorSearcher.
func (s *WeaviateSearcher) Search(ctx context.Context, vector []float32, limit int, filter Filters) ([]Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	documents, err := s.decodeDocuments(result)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(documents))
	for _, doc := range documents {
		var similarity float64
		if doc.Additional.Certainty != nil {
			similarity = float64(*doc.Additional.Certainty)
		}
		matches = append(matches, Match{
			Content:    doc.Content,
			Source:     doc.Source,
			Similarity: similarity,
		})
	}
	slog.Debug("Vector search completed", "class", s.className, "matches", len(matches))
	return matches, nil
}

// buildWhere compiles a filter set into a Weaviate where clause. Returns nil
// for an empty set. Keys are visited in sorted order so the compiled clause
// is deterministic.
func buildWhere(filter Filters) *filters.WhereBuilder {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, key := range keys {
		clause := filters.Where().WithPath([]string{key})
		switch value := filter[key].(type) {
		case string:
			clause = clause.WithOperator(filters.Equal).WithValueString(value)
		case bool:
			clause = clause.WithOperator(filters.Equal).WithValueBoolean(value)
		case int:
			clause = clause.WithOperator(filters.Equal).WithValueInt(int64(value))
		case int64:
			clause = clause.WithOperator(filters.Equal).WithValueInt(value)
		case float64:
			clause = clause.WithOperator(filters.Equal).WithValueNumber(value)
		default:
			clause = clause.WithOperator(filters.Equal).WithValueString(fmt.Sprintf("%v", value))
		}
		operands = append(operands, clause)
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// decodeDocuments extracts the typed document list from a raw GraphQL
// response, surfacing GraphQL-level errors the transport does not.
func (s *WeaviateSearcher) decodeDocuments(resp *models.GraphQLResponse) ([]documentQueryResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query error: %s", resp.Errors[0].Message)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var envelope struct {
		Get map[string][]documentQueryResponse `json:"Get"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode GraphQL response data: %w", err)
	}
	return envelope.Get[s.className], nil
}

var _ VectorSearcher = (*WeaviateSearcher)(nil)
