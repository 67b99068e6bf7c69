// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command gateway starts the Ragward security gateway HTTP server.
//
// It reads configuration from environment variables and runs until
// SIGINT or SIGTERM.
//
// # Environment Variables
//
//   - GATEWAY_PORT: HTTP server port (default: 8080)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - WEAVIATE_CLASS_NAME: document class to search (default: Document)
//   - LLM_BACKEND_TYPE: LLM provider - local, openai (default: local)
//   - OPENAI_API_KEY: API key for the openai backend
//   - LLM_SERVICE_URL_BASE: llama.cpp-style server for the local backend
//   - EMBEDDING_SERVICE_URL: embedding sidecar for the local backend
//   - RAGWARD_EVENT_LOG_DIR: Badger event log dir (default: in-memory)
//   - RAGWARD_LOG_DIR: structured log file dir (default: stderr only)
//   - RAGWARD_RULES_FILE: optional defense rules override, hot-reloaded
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector (default: ragward-otel-collector:4317)
//
// # Usage
//
//	go build -o gateway ./cmd/gateway
//	WEAVIATE_SERVICE_URL=http://localhost:8080 ./gateway
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/ragward-ai/ragward/pkg/logging"
	"github.com/ragward-ai/ragward/services/gateway"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("RAGWARD_LOG_DIR"),
		Service: "gateway",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := gateway.Config{
		Port:          getEnvInt("GATEWAY_PORT", 8080),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		WeaviateClass: os.Getenv("WEAVIATE_CLASS_NAME"),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EventLogDir:   os.Getenv("RAGWARD_EVENT_LOG_DIR"),
		RulesFile:     os.Getenv("RAGWARD_RULES_FILE"),
		GinMode:       os.Getenv("GIN_MODE"),
	}

	slog.Info("Starting the Ragward gateway",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
		"event_log_dir", cfg.EventLogDir,
	)

	svc, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create the gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
