// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/ragward-ai/ragward/services/retrieval_guard"
)

func TestBuildContextCapsDocumentCount(t *testing.T) {
	matches := make([]retrieval_guard.Match, 8)
	for i := range matches {
		matches[i] = retrieval_guard.Match{Content: fmt.Sprintf("doc %d", i+1)}
	}

	block := buildContext(matches)

	assert.Contains(t, block, "[Document 5]")
	assert.NotContains(t, block, "[Document 6]")
}

func TestBuildContextTruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("x", 1500)
	block := buildContext([]retrieval_guard.Match{{Content: long}})

	assert.Contains(t, block, "...")
	// Header plus 1000 content chars plus the ellipsis.
	assert.Less(t, len(block), 1100)
}

func TestBuildContextTruncatesOnRuneBoundary(t *testing.T) {
	// 1000 bytes lands mid-rune for a document of 3-byte runes; the cut
	// must back up instead of splitting one.
	long := strings.Repeat("語", 400)
	block := buildContext([]retrieval_guard.Match{{Content: long}})

	assert.True(t, utf8.ValidString(block), "truncation must not split a rune")
	assert.Contains(t, block, "...")
}

func TestBuildPromptContainsContextAndQuestion(t *testing.T) {
	prompt := buildPrompt("[Document 1]\nsome context", "what is RAG?")

	assert.Contains(t, prompt, "[Document 1]")
	assert.Contains(t, prompt, "Question: what is RAG?")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}
