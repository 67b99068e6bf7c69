// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsBurstThenRefuses(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 3}, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d is within the burst", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "bucket is drained")
	assert.True(t, limiter.Allow("10.0.0.2"), "other clients are unaffected")
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limited := 0
	limiter := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1}, func() { limited++ })

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate_limited")
	assert.Equal(t, 1, limited)
}

func TestRateLimiterRemoveIdle(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{IdleTTL: time.Nanosecond}, nil)

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")
	time.Sleep(time.Millisecond)

	assert.Equal(t, 2, limiter.RemoveIdle())
	assert.Equal(t, 0, limiter.RemoveIdle())
}
