// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLocalClient(t *testing.T, handler http.Handler) *LocalClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("LLM_SERVICE_URL_BASE", server.URL)
	t.Setenv("EMBEDDING_SERVICE_URL", server.URL+"/embed")

	client, err := NewLocalClient()
	if err != nil {
		t.Fatalf("Failed to create local client: %v", err)
	}
	return client
}

func TestLocalClientGenerate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var payload localCompletionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		if payload.Prompt != "hello" {
			t.Errorf("Prompt = %q, want %q", payload.Prompt, "hello")
		}
		json.NewEncoder(w).Encode(localCompletionResponse{Content: "world"})
	})

	client := newTestLocalClient(t, mux)
	got, err := client.Generate(context.Background(), "hello", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "world" {
		t.Errorf("Generate = %q, want %q", got, "world")
	}
}

func TestLocalClientGenerateServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	client := newTestLocalClient(t, mux)
	if _, err := client.Generate(context.Background(), "hello", GenerationParams{}); err == nil {
		t.Error("Expected an error on a 503 response")
	}
}

func TestLocalClientEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localEmbeddingResponse{Vector: []float32{0.1, 0.2, 0.3}, Dim: 3})
	})

	client := newTestLocalClient(t, mux)
	vector, err := client.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vector) != 3 {
		t.Errorf("Got %d dimensions, want 3", len(vector))
	}
}

func TestLocalClientEmbedEmptyVector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localEmbeddingResponse{})
	})

	client := newTestLocalClient(t, mux)
	if _, err := client.Embed(context.Background(), "some text"); err == nil {
		t.Error("Expected an error for an empty vector")
	}
}

func TestNewLocalClientRequiresConfig(t *testing.T) {
	t.Setenv("LLM_SERVICE_URL_BASE", "")
	t.Setenv("EMBEDDING_SERVICE_URL", "")
	if _, err := NewLocalClient(); err == nil {
		t.Error("Expected an error when LLM_SERVICE_URL_BASE is unset")
	}
}

func TestNewBackendFromEnvRejectsUnknownType(t *testing.T) {
	t.Setenv("LLM_BACKEND_TYPE", "mainframe")
	if _, err := NewBackendFromEnv(); err == nil {
		t.Error("Expected an error for an unsupported backend type")
	}
}
