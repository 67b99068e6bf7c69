// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the generation and embedding collaborators the
// defense pipeline calls. Backends are selected at startup; an unsupported
// backend type is a fatal configuration error, not a per-request condition.
package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Generate may fail transiently or return empty text; the pipeline treats
// both as a fatal condition for the current request.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Embedder produces a fixed-dimensionality vector for a piece of text.
//
// Implementations may fail transiently. Callers must not retry here; the
// pipeline surfaces the failure for the whole request.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
