// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics creates metrics on an isolated registry.
func newTestMetrics(t *testing.T) *StreamingMetrics {
	t.Helper()
	return NewStreamingMetrics(prometheus.NewRegistry())
}

func TestInitMetrics_Idempotent(t *testing.T) {
	first := InitMetrics()
	second := InitMetrics()

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Same(t, first, DefaultMetrics)
}

func TestNewStreamingMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStreamingMetrics(reg)
	assert.Panics(t, func() { NewStreamingMetrics(reg) })
}

func TestStreamingMetrics_RecordRequest(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordRequest(EndpointAnalyze, true)
	m.RecordRequest(EndpointAnalyze, true)
	m.RecordRequest(EndpointAnalyze, false)
	m.RecordRequest(EndpointCompare, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("analyze", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("analyze", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("compare", "success")))
}

func TestStreamingMetrics_RecordError(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordError(EndpointAnalyze, ErrorCodeTimeout)
	m.RecordError(EndpointAnalyze, ErrorCodeStreamCorrupted)
	m.RecordError(EndpointAnalyze, ErrorCodeTimeout)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("analyze", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("analyze", "stream_corrupted")))
}

func TestStreamingMetrics_RecordChunkAndTokens(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordChunk(EndpointAnalyze, "content")
	m.RecordChunk(EndpointAnalyze, "content")
	m.RecordChunk(EndpointAnalyze, "done")
	m.RecordReasoningTokens("grok", 100)
	m.RecordReasoningTokens("grok", 0)
	m.RecordReasoningTokens("grok", -5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues("analyze", "content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues("analyze", "done")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.ReasoningTokensTotal.WithLabelValues("grok")))
}

func TestStreamingMetrics_StreamLifecycle(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.StreamStarted(EndpointAnalyze)
	m.StreamStarted(EndpointAnalyze)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("analyze")))

	m.RecordTimeToFirstChunk(EndpointAnalyze, 1.5)
	m.RecordStreamDuration(EndpointAnalyze, 42, true)
	m.StreamEnded(EndpointAnalyze)
	m.StreamEnded(EndpointAnalyze)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("analyze")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TimeToFirstChunkSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StreamDurationSeconds))
}

func TestStreamingMetrics_KeepAliveAndDisconnect(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordKeepAlive(EndpointCompare)
	m.RecordKeepAlive(EndpointCompare)
	m.RecordClientDisconnect(EndpointCompare)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.KeepAlivesTotal.WithLabelValues("compare")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientDisconnectsTotal.WithLabelValues("compare")))
}

func TestStreamingMetrics_ConcurrentSafety(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StreamStarted(EndpointAnalyze)
			m.RecordChunk(EndpointAnalyze, "content")
			m.StreamEnded(EndpointAnalyze)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, testutil.ToFloat64(m.ChunksTotal.WithLabelValues("analyze", "content")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("analyze")))
}
