// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockStreamer emits one content event.
type mockStreamer struct{}

func (m *mockStreamer) StreamAnalysis(_ context.Context, _ []string, cb upstream.EventCallback) error {
	return cb(upstream.ProviderEvent{Choices: []upstream.Choice{{Delta: &upstream.Delta{Content: "mock"}}}})
}

func (m *mockStreamer) Model() string { return "mock" }

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockStreamer{}, Options{})

	assert.True(t, hasRoute(router, http.MethodGet, "/health"))
	assert.True(t, hasRoute(router, http.MethodPost, "/api/analyze"))
	assert.True(t, hasRoute(router, http.MethodPost, "/v1/analyze"))
	assert.False(t, hasRoute(router, http.MethodGet, "/metrics"))
}

func TestSetupRoutes_MetricsEnabled(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockStreamer{}, Options{EnableMetrics: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSetupRoutes_Health(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockStreamer{}, Options{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSetupRoutes_AnalyzeAliasStreams(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockStreamer{}, Options{})

	for _, path := range []string{"/api/analyze", "/v1/analyze"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"username":"jack"}`))
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), `"data":"mock"`)
			assert.Contains(t, w.Body.String(), `"type":"done"`)
		})
	}
}

func TestSetupRoutes_UnknownRoute(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, &mockStreamer{}, Options{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
