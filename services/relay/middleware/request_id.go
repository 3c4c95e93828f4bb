// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the relay.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID
//	   │
//	   ├─► Reuse a valid UUID from "X-Request-ID", or generate one
//	   │
//	   ├─► Echo it in the response header
//	   │
//	   └─► Store it in the Gin context
//	           │
//	           ▼
//	       Handler (retrieves via GetRequestID)
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Context Keys
// =============================================================================

const (
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"

	// requestIDKey is the Gin context key for the request ID.
	requestIDKey = "profilescope_request_id"
)

// =============================================================================
// Middleware
// =============================================================================

// RequestID assigns every request an ID for log and trace correlation.
//
// # Description
//
// An incoming X-Request-ID is kept only when it parses as a UUID, so callers
// cannot inject arbitrary text into logs. Otherwise a new v4 UUID is
// generated.
//
// # Examples
//
//	router := gin.New()
//	router.Use(middleware.RequestID())
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "" when the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
