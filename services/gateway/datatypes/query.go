// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the gateway's request and response shapes.
package datatypes

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// userIDPattern bounds what we accept as a user identifier. Anything else
// is a binding error, never a silent fallback.
var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

// QueryRequest is the body of POST /v1/query.
//
// UserID is optional; requests without one run as the anonymous user and
// only see public documents. TopK above the retrieval ceiling is clamped,
// not rejected.
type QueryRequest struct {
	Query  string         `json:"query" binding:"required,min=1,max=8192"`
	UserID string         `json:"user_id" binding:"omitempty,ragward_user_id"`
	TopK   int            `json:"top_k" binding:"omitempty,min=1"`
	Filter map[string]any `json:"filters" binding:"omitempty"`
}

// QueryResponse is the success body of POST /v1/query.
type QueryResponse struct {
	Query       string `json:"query"`
	Response    string `json:"response"`
	SourceCount int    `json:"source_count"`
}

// ErrorResponse is the body of every non-2xx answer. Reason carries a
// stable machine-readable code; Error is for humans.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// RecentEventsResponse is the body of GET /v1/events/recent.
type RecentEventsResponse struct {
	Count  int `json:"count"`
	Events any `json:"events"`
}

// RegisterValidators installs the gateway's custom binding validators on
// gin's default validator engine. Call once at startup.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Registration only fails for an empty tag name.
		_ = v.RegisterValidation("ragward_user_id", func(fl validator.FieldLevel) bool {
			return userIDPattern.MatchString(fl.Field().String())
		})
	}
}
