// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the relay.
//
// # Description
//
// Metrics cover the analysis stream lifecycle:
//   - Request counters (by endpoint, status)
//   - Chunks relayed (by kind)
//   - Reasoning tokens reported by the provider (by model)
//   - Latency histograms (time to first chunk, total duration)
//   - Active stream gauge
//   - Error, keepalive and client disconnect counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint when enabled.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace   = "profilescope"
	streamingSubsystem = "relay"
)

// StreamingMetrics holds all Prometheus metrics for analysis streams.
//
// # Fields
//
//   - RequestsTotal: Streams by endpoint and status (success, error)
//   - ChunksTotal: Chunks written by endpoint and kind
//   - ReasoningTokensTotal: Provider reasoning tokens by model
//   - TimeToFirstChunkSeconds: Latency from request to first chunk
//   - StreamDurationSeconds: Total stream duration by endpoint and status
//   - ActiveStreams: Currently open streams
//   - ErrorsTotal: Errors by endpoint and error code
//   - KeepAlivesTotal: Keepalive comments sent
//   - ClientDisconnectsTotal: Streams aborted by the client
type StreamingMetrics struct {
	RequestsTotal           *prometheus.CounterVec
	ChunksTotal             *prometheus.CounterVec
	ReasoningTokensTotal    *prometheus.CounterVec
	TimeToFirstChunkSeconds *prometheus.HistogramVec
	StreamDurationSeconds   *prometheus.HistogramVec
	ActiveStreams           *prometheus.GaugeVec
	ErrorsTotal             *prometheus.CounterVec
	KeepAlivesTotal         *prometheus.CounterVec
	ClientDisconnectsTotal  *prometheus.CounterVec
}

// DefaultMetrics is the process-wide instance. Nil until InitMetrics runs;
// call sites check for nil so metrics stay optional.
var DefaultMetrics *StreamingMetrics

var initOnce sync.Once

// InitMetrics registers the metrics with the default Prometheus registry
// and sets DefaultMetrics. Later calls return the same instance.
func InitMetrics() *StreamingMetrics {
	initOnce.Do(func() {
		DefaultMetrics = NewStreamingMetrics(prometheus.DefaultRegisterer)
	})
	return DefaultMetrics
}

// NewStreamingMetrics creates the metrics and registers them with reg.
//
// # Description
//
// Tests pass a fresh prometheus.NewRegistry() so they can run in parallel
// without colliding on the default registry.
//
// # Limitations
//
//   - Panics if the metrics are already registered with reg.
func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	factory := promauto.With(reg)

	return &StreamingMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of analysis streams by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "chunks_total",
				Help:      "Total chunks written to clients by endpoint and kind",
			},
			[]string{"endpoint", "kind"},
		),

		ReasoningTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "reasoning_tokens_total",
				Help:      "Reasoning tokens reported by the provider, by model",
			},
			[]string{"model"},
		),

		TimeToFirstChunkSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from request to first relayed chunk in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{5, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active analysis streams",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		KeepAlivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive comments sent",
			},
			[]string{"endpoint"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode categorizes a failure. Stream error codes double as the "code"
// field of error chunks.
type ErrorCode string

const (
	// ErrorCodeValidation indicates a rejected request body.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeUpstream indicates a provider transport or status failure.
	ErrorCodeUpstream ErrorCode = "upstream_error"

	// ErrorCodeTimeout indicates the analysis deadline was exceeded.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeStreamCorrupted indicates too many unparsable provider events.
	ErrorCodeStreamCorrupted ErrorCode = "stream_corrupted"

	// ErrorCodeInternal indicates a relay-side failure.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client went away.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint labels a streaming endpoint.
type Endpoint string

const (
	// EndpointAnalyze is the single-profile analysis stream.
	EndpointAnalyze Endpoint = "analyze"

	// EndpointCompare is the multi-profile comparison stream.
	EndpointCompare Endpoint = "compare"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed stream.
func (m *StreamingMetrics) RecordRequest(endpoint Endpoint, success bool) {
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// RecordError records an error by code.
func (m *StreamingMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordChunk counts one chunk written to a client.
func (m *StreamingMetrics) RecordChunk(endpoint Endpoint, kind string) {
	m.ChunksTotal.WithLabelValues(string(endpoint), kind).Inc()
}

// RecordReasoningTokens adds provider reasoning tokens. Non-positive values
// are ignored.
func (m *StreamingMetrics) RecordReasoningTokens(model string, tokens int) {
	if tokens <= 0 {
		return
	}
	m.ReasoningTokensTotal.WithLabelValues(model).Add(float64(tokens))
}

// StreamStarted increments the active streams gauge.
func (m *StreamingMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *StreamingMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstChunk observes the first-chunk latency.
func (m *StreamingMetrics) RecordTimeToFirstChunk(endpoint Endpoint, seconds float64) {
	m.TimeToFirstChunkSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration observes the total stream duration.
func (m *StreamingMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *StreamingMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *StreamingMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
