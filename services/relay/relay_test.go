// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relay

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/profilescope/services/relay/middleware"
	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStreamer struct{}

func (stubStreamer) StreamAnalysis(_ context.Context, _ []string, cb upstream.EventCallback) error {
	return cb(upstream.ProviderEvent{Choices: []upstream.Choice{{Delta: &upstream.Delta{Content: "hello"}}}})
}

func (stubStreamer) Model() string { return "stub" }

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 3000, result.Port)
	assert.Equal(t, TraceExporterNone, result.TraceExporter)
	assert.Equal(t, "localhost:4317", result.OTelEndpoint)
	assert.Equal(t, 10*time.Second, result.ShutdownTimeout)
	assert.False(t, result.EnableMetrics)
}

func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	result := applyConfigDefaults(Config{
		Port:            8080,
		TraceExporter:   TraceExporterStdout,
		OTelEndpoint:    "collector:4317",
		ShutdownTimeout: time.Second,
	})

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, TraceExporterStdout, result.TraceExporter)
	assert.Equal(t, "collector:4317", result.OTelEndpoint)
	assert.Equal(t, time.Second, result.ShutdownTimeout)
}

// =============================================================================
// New Tests
// =============================================================================

func TestNew_InvalidGinMode(t *testing.T) {
	_, err := New(Config{GinMode: "verbose"}, stubStreamer{})
	assert.Error(t, err)
}

func TestNew_UnknownTraceExporter(t *testing.T) {
	_, err := New(Config{TraceExporter: "zipkin"}, stubStreamer{})
	assert.Error(t, err)
}

func TestNew_DefaultStreamerWithoutKey(t *testing.T) {
	svc, err := New(Config{}, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"username":"jack"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"error"`)
	assert.Contains(t, w.Body.String(), "XAI_API_KEY environment variable is not set")
}

func TestNew_RouterServesAnalyzeWithRequestID(t *testing.T) {
	svc, err := New(Config{TraceExporter: TraceExporterStdout}, stubStreamer{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"username":"jack"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"data":"hello"`)
}

func TestNew_MetricsRoute(t *testing.T) {
	svc, err := New(Config{EnableMetrics: true}, stubStreamer{})
	require.NoError(t, err)

	// One stream so the vector metrics have samples.
	svc.Router().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"username":"jack"}`)))

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "profilescope_relay_requests_total")
}

// =============================================================================
// Run Tests
// =============================================================================

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	svc, err := New(Config{Port: port, ShutdownTimeout: time.Second}, stubStreamer{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingStreamer holds every analysis open until its context ends.
type blockingStreamer struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingStreamer) StreamAnalysis(ctx context.Context, _ []string, _ upstream.EventCallback) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingStreamer) Model() string { return "blocking" }

func TestRun_ShutdownCutsOpenStreams(t *testing.T) {
	port := freePort(t)
	streamer := &blockingStreamer{started: make(chan struct{})}
	svc, err := New(Config{Port: port, ShutdownTimeout: 50 * time.Millisecond, HeartbeatInterval: time.Hour}, streamer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Post(base+"/api/analyze", "application/json", strings.NewReader(`{"username":"jack"}`))
		if err != nil {
			bodyCh <- ""
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		bodyCh <- string(data)
	}()

	select {
	case <-streamer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never started")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the drain period")
	}

	select {
	case body := <-bodyCh:
		assert.Contains(t, body, `"type":"error"`)
		assert.Contains(t, body, "shutting down")
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestRun_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	svc, err := New(Config{Port: l.Addr().(*net.TCPAddr).Port}, stubStreamer{})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.Error(t, err)
}
