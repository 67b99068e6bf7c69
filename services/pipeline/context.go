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
	"unicode/utf8"

	"github.com/ragward-ai/ragward/services/retrieval_guard"
)

// NoInformationAnswer is returned verbatim when retrieval finds nothing
// above the similarity floor. The model is never consulted in that case.
const NoInformationAnswer = "No relevant information found."

const (
	maxContextDocuments = 5
	maxDocumentChars    = 1000
)

// buildContext formats retrieved matches into numbered document blocks.
// At most maxContextDocuments are used; each is truncated to at most
// maxDocumentChars bytes with a trailing ellipsis.
func buildContext(matches []retrieval_guard.Match) string {
	if len(matches) > maxContextDocuments {
		matches = matches[:maxContextDocuments]
	}

	var b strings.Builder
	for i, match := range matches {
		content := match.Content
		if len(content) > maxDocumentChars {
			content = truncateAtRune(content, maxDocumentChars) + "..."
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d]\n%s", i+1, content)
	}
	return b.String()
}

// truncateAtRune cuts s to at most limit bytes, backing up so the cut never
// splits a multi-byte rune.
func truncateAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// buildPrompt assembles the grounded prompt. The instruction pins the model
// to the supplied context so retrieval stays the only source of facts.
func buildPrompt(contextBlock, query string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so instead of guessing.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
