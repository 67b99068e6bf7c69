// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/ragward-ai/ragward/services/gateway/datatypes"
	"github.com/ragward-ai/ragward/services/gateway/observability"
	"github.com/ragward-ai/ragward/services/pipeline"
)

var tracer = otel.Tracer("ragward.gateway.handlers")

// HandleQuery runs one query through the defense pipeline.
//
// Terminal mapping: a rejected query is 400 with a stable reason code, a
// collaborator failure is a generic 500 (the cause is logged and tracked
// server-side, never sent to the client), everything else is 200.
func HandleQuery(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleQuery")
		defer span.End()

		start := time.Now()

		var req datatypes.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "Invalid request body",
				Reason: "invalid_request",
			})
			recordOutcome("error", start)
			return
		}

		outcome, err := p.Process(ctx, pipeline.Request{
			Query:   req.Query,
			UserID:  req.UserID,
			TopK:    req.TopK,
			Filters: req.Filter,
		})
		if err != nil {
			slog.Error("Query processing failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "Internal error",
			})
			recordOutcome("error", start)
			return
		}

		if outcome.Status == pipeline.StatusRejected {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRejection(outcome.Reason)
			}
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "Query rejected for security reasons",
				Reason: outcome.Reason,
			})
			recordOutcome(string(outcome.Status), start)
			return
		}

		c.JSON(http.StatusOK, datatypes.QueryResponse{
			Query:       req.Query,
			Response:    outcome.Answer,
			SourceCount: outcome.SourceCount,
		})
		recordOutcome(string(outcome.Status), start)
	}
}

func recordOutcome(outcome string, start time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOutcome(outcome, time.Since(start).Seconds())
	}
}
