// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragward-ai/ragward/services/gateway/handlers"
	"github.com/ragward-ai/ragward/services/gateway/middleware"
	"github.com/ragward-ai/ragward/services/monitoring"
	"github.com/ragward-ai/ragward/services/pipeline"
)

// SetupRoutes registers every gateway endpoint.
//
// The rate limiter guards only the /v1 group; health and metrics stay
// reachable during a flood. events may be nil when the event log runs on a
// non-Badger sink, in which case the replay endpoint is not registered.
func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, events *monitoring.BadgerEventSink, limiter *middleware.RateLimiter) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if limiter != nil {
		v1.Use(limiter.Middleware())
	}
	{
		v1.POST("/query", handlers.HandleQuery(p))
		if events != nil {
			v1.GET("/events/recent", handlers.HandleRecentEvents(events))
		}
	}
}
