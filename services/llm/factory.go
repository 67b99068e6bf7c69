// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
)

// Backend bundles the generation and embedding halves of one provider.
// Both OpenAIClient and LocalClient satisfy it.
type Backend interface {
	LLMClient
	Embedder
}

// NewBackendFromEnv selects the provider named by LLM_BACKEND_TYPE.
//
// Supported values are "openai" and "local" (the default). Any other value
// is a configuration error and should abort startup; backend validity is
// never a per-request decision.
func NewBackendFromEnv() (Backend, error) {
	backendType := os.Getenv("LLM_BACKEND_TYPE")
	switch backendType {
	case "openai":
		slog.Info("Using the OpenAI LLM backend")
		return NewOpenAIClient()
	case "local", "":
		if backendType == "" {
			slog.Warn("LLM_BACKEND_TYPE not set, defaulting to local")
		} else {
			slog.Info("Using the local LLM backend")
		}
		return NewLocalClient()
	default:
		return nil, fmt.Errorf("unsupported LLM backend type: %q", backendType)
	}
}
