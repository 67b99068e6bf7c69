// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/ragward-ai/ragward/services/llm"
	"github.com/ragward-ai/ragward/services/monitoring"
	"github.com/ragward-ai/ragward/services/prompt_guard"
	"github.com/ragward-ai/ragward/services/response_guard"
	"github.com/ragward-ai/ragward/services/retrieval_guard"
)

var tracer = otel.Tracer("ragward.pipeline")

// Retriever is the guarded search the pipeline calls. Satisfied by
// *retrieval_guard.Guard.
type Retriever interface {
	SecureQuery(ctx context.Context, query, userID string, topK int, filters retrieval_guard.Filters) (*retrieval_guard.RetrievalResult, error)
}

// Tracker records security events. Satisfied by *monitoring.Monitor.
type Tracker interface {
	Track(ctx context.Context, userID string, eventType monitoring.EventType, payload map[string]any) []monitoring.AttackSignal
}

// Config carries the pipeline's generation settings.
type Config struct {
	// Generation is passed to the model on every call.
	Generation llm.GenerationParams
}

// Pipeline wires the defense stages around an embed-search-generate flow.
//
// Ordering is load-bearing: a High-risk query is rejected before retrieval
// or generation can observe it, and a zero-result retrieval returns the
// fixed no-information answer before generation runs. Safe for concurrent
// use; all collaborators are required.
type Pipeline struct {
	cfg       Config
	validator *prompt_guard.Validator
	sanitizer *prompt_guard.Sanitizer
	retriever Retriever
	responses *response_guard.Validator
	generator llm.LLMClient
	monitor   Tracker
}

// New creates a pipeline over the given collaborators.
func New(
	cfg Config,
	validator *prompt_guard.Validator,
	sanitizer *prompt_guard.Sanitizer,
	retriever Retriever,
	responses *response_guard.Validator,
	generator llm.LLMClient,
	monitor Tracker,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		validator: validator,
		sanitizer: sanitizer,
		retriever: retriever,
		responses: responses,
		generator: generator,
		monitor:   monitor,
	}
}

// Process runs one query through every defense stage.
//
// A non-nil Outcome with a nil error covers rejection, the no-context
// answer, and a full answer. A non-nil error means a collaborator failed;
// the failure is tracked as a system_error event and the caller should
// return a generic failure without leaking the cause.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	userID := req.UserID
	if userID == "" {
		userID = retrieval_guard.AnonymousUser
	}

	p.monitor.Track(ctx, userID, monitoring.EventQueryRequest, map[string]any{
		"query_length": len(req.Query),
		"top_k":        req.TopK,
	})

	validation := p.validator.Validate(req.Query)
	p.monitor.Track(ctx, userID, monitoring.EventInputValidation, map[string]any{
		"is_valid":   validation.IsValid,
		"risk_level": string(validation.RiskLevel),
		"detections": len(validation.Detections),
	})

	if validation.RiskLevel == prompt_guard.RiskHigh {
		p.monitor.Track(ctx, userID, monitoring.EventQueryRejected, map[string]any{
			"reason":     ReasonHighRiskInput,
			"detections": len(validation.Detections),
		})
		slog.Warn("Rejected a high-risk query",
			"user_id", userID, "detections", len(validation.Detections))
		return &Outcome{
			Status:    StatusRejected,
			Reason:    ReasonHighRiskInput,
			RiskLevel: validation.RiskLevel,
		}, nil
	}

	safeQuery := p.sanitizer.SafeQuery(req.Query, validation)
	sanitized := safeQuery != req.Query

	retrieval, err := p.retriever.SecureQuery(ctx, safeQuery, userID, req.TopK, req.Filters)
	if err != nil {
		p.trackSystemError(ctx, userID, "retrieval", err)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(retrieval.Results) == 0 {
		p.monitor.Track(ctx, userID, monitoring.EventQueryResponse, map[string]any{
			"source_count":    0,
			"response_length": len(NoInformationAnswer),
		})
		return &Outcome{
			Status:      StatusNoContext,
			Answer:      NoInformationAnswer,
			Reason:      ReasonNoRelevantContext,
			RiskLevel:   validation.RiskLevel,
			Sanitized:   sanitized,
			SourceCount: 0,
		}, nil
	}

	answer, err := p.generate(ctx, safeQuery, retrieval.Results)
	if err != nil {
		p.trackSystemError(ctx, userID, "generation", err)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	responseValidation := p.responses.Validate(answer)
	p.monitor.Track(ctx, userID, monitoring.EventResponseValidation, map[string]any{
		"is_valid":   responseValidation.IsValid,
		"risk_level": string(responseValidation.RiskLevel),
		"issues":     len(responseValidation.Issues),
	})
	final := p.responses.Sanitize(answer, responseValidation)

	p.monitor.Track(ctx, userID, monitoring.EventQueryResponse, map[string]any{
		"source_count":    len(retrieval.Results),
		"response_length": len(final),
	})

	return &Outcome{
		Status:      StatusAnswered,
		Answer:      final,
		SourceCount: len(retrieval.Results),
		RiskLevel:   validation.RiskLevel,
		Sanitized:   sanitized,
	}, nil
}

// generate assembles the grounded prompt and calls the model.
func (p *Pipeline) generate(ctx context.Context, query string, matches []retrieval_guard.Match) (string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	prompt := buildPrompt(buildContext(matches), query)
	return p.generator.Generate(ctx, prompt, p.cfg.Generation)
}

// trackSystemError records a collaborator failure without exposing it to
// the end user.
func (p *Pipeline) trackSystemError(ctx context.Context, userID, stage string, err error) {
	slog.Error("Pipeline stage failed", "stage", stage, "user_id", userID, "error", err)
	p.monitor.Track(ctx, userID, monitoring.EventSystemError, map[string]any{
		"stage": stage,
		"error": err.Error(),
	})
}
