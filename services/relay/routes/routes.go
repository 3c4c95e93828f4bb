// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/AleutianAI/profilescope/services/relay/handlers"
	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tunes route registration.
type Options struct {
	// EnableMetrics exposes GET /metrics.
	EnableMetrics bool

	// HeartbeatInterval is the keepalive period. Zero selects
	// handlers.DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

// SetupRoutes registers the relay's routes on router.
//
//	GET  /health
//	GET  /metrics       (when enabled)
//	POST /api/analyze
//	POST /v1/analyze    (alias)
func SetupRoutes(router *gin.Engine, streamer upstream.ResponsesStreamer, opts Options) {
	analyze := handlers.NewAnalyzeHandler(streamer, opts.HeartbeatInterval)

	router.GET("/health", handlers.HealthCheck)
	if opts.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/analyze", analyze.HandleAnalyze)
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/analyze", analyze.HandleAnalyze)
	}
}
