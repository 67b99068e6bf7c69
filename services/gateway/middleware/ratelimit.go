// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the gateway.
//
// The edge rate limiter is coarse flood control in front of the attack
// detector: it stops raw request volume per client address, while the
// detector reasons about per-user behavior across the whole pipeline.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ragward-ai/ragward/services/gateway/datatypes"
)

// RateLimiterConfig tunes the per-client edge limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client address.
	RequestsPerSecond float64

	// Burst is the token bucket depth per client.
	Burst int

	// IdleTTL is how long an inactive client keeps its bucket.
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig allows a modest interactive rate per address.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket keyed by remote address.
// Safe for concurrent use.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter

	// onLimited is called once per refused request; used for metrics.
	onLimited func()
}

// NewRateLimiter creates a limiter. onLimited may be nil.
func NewRateLimiter(cfg RateLimiterConfig, onLimited func()) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	return &RateLimiter{
		cfg:       cfg,
		clients:   make(map[string]*clientLimiter),
		onLimited: onLimited,
	}
}

// Allow reports whether the client may proceed right now.
func (r *RateLimiter) Allow(clientKey string) bool {
	r.mu.Lock()
	client, ok := r.clients[clientKey]
	if !ok {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst),
		}
		r.clients[clientKey] = client
	}
	client.lastSeen = time.Now()
	r.mu.Unlock()

	return client.limiter.Allow()
}

// RemoveIdle drops buckets not seen within the idle TTL and returns the
// number removed. Run it periodically to bound memory.
func (r *RateLimiter) RemoveIdle() int {
	cutoff := time.Now().Add(-r.cfg.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, client := range r.clients {
		if client.lastSeen.Before(cutoff) {
			delete(r.clients, key)
			removed++
		}
	}
	return removed
}

// Middleware returns the gin handler enforcing the limit. Refused requests
// get 429 with a machine-readable reason and never reach the pipeline.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			if r.onLimited != nil {
				r.onLimited()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error:  "Too many requests",
				Reason: "rate_limited",
			})
			return
		}
		c.Next()
	}
}
