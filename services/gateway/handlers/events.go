// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ragward-ai/ragward/services/gateway/datatypes"
	"github.com/ragward-ai/ragward/services/monitoring"
)

// defaultRecentLimit bounds the event replay when the caller does not ask
// for a specific amount.
const defaultRecentLimit = 50

// maxRecentLimit caps how much of the log one request may replay.
const maxRecentLimit = 1000

// HandleRecentEvents returns the newest security events, newest first.
// Operator-facing: this is how an on-call inspects what the defenses did
// without shelling into the event log.
func HandleRecentEvents(sink *monitoring.BadgerEventSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultRecentLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					Error:  "limit must be a positive integer",
					Reason: "invalid_request",
				})
				return
			}
			limit = min(parsed, maxRecentLimit)
		}

		events, err := sink.Recent(limit)
		if err != nil {
			slog.Error("Failed to read recent events", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "Internal error",
			})
			return
		}

		c.JSON(http.StatusOK, datatypes.RecentEventsResponse{
			Count:  len(events),
			Events: events,
		})
	}
}
