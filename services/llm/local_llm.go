// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// LocalClient talks to a self-hosted llama.cpp-style completion server and
// a sidecar embedding service over HTTP.
type LocalClient struct {
	httpClient   *http.Client
	baseURL      string
	embeddingURL string
}

type localCompletionPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type localCompletionResponse struct {
	Content string `json:"content"`
}

type localEmbeddingRequest struct {
	Text string `json:"text"`
}

type localEmbeddingResponse struct {
	Vector []float32 `json:"vector"`
	Dim    int       `json:"dim"`
}

// NewLocalClient reads LLM_SERVICE_URL_BASE and EMBEDDING_SERVICE_URL from
// the environment. Both are required for the local backend.
func NewLocalClient() (*LocalClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	embeddingURL := os.Getenv("EMBEDDING_SERVICE_URL")
	if embeddingURL == "" {
		return nil, fmt.Errorf("EMBEDDING_SERVICE_URL environment variable not set")
	}
	return &LocalClient{
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		embeddingURL: embeddingURL,
	}, nil
}

// Generate implements the LLMClient interface.
func (l *LocalClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	payload := localCompletionPayload{Prompt: prompt, NPredict: 512}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	}
	payload.Temperature = params.Temperature
	payload.TopK = params.TopK
	payload.TopP = params.TopP
	payload.Stop = params.Stop

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the completion payload: %w", err)
	}

	completionURL := l.baseURL + "/completion"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create the completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling the local completion server", "url", completionURL)
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach the local completion server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("the completion server returned status %d: %s",
			resp.StatusCode, string(respBody))
	}

	var completion localCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("failed to parse the completion response: %w", err)
	}
	return completion.Content, nil
}

// Embed implements the Embedder interface by calling the sidecar embedding
// service.
func (l *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal the embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.embeddingURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create the embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach the embedding service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read the embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("the embedding service returned status %d: %s",
			resp.StatusCode, string(respBody))
	}

	var embedding localEmbeddingResponse
	if err := json.Unmarshal(respBody, &embedding); err != nil {
		return nil, fmt.Errorf("failed to parse the embedding response: %w", err)
	}
	if len(embedding.Vector) == 0 {
		return nil, fmt.Errorf("the embedding service returned an empty vector")
	}
	return embedding.Vector, nil
}
