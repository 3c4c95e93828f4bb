// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the relay's HTTP handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/profilescope/pkg/stream"
	"github.com/AleutianAI/profilescope/services/relay/datatypes"
	"github.com/AleutianAI/profilescope/services/relay/middleware"
	"github.com/AleutianAI/profilescope/services/relay/normalizer"
	"github.com/AleutianAI/profilescope/services/relay/observability"
	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHeartbeatInterval is how often a keepalive comment is written
// while the provider is silent.
const DefaultHeartbeatInterval = 15 * time.Second

// errWriteFailed marks failures writing to the client connection.
var errWriteFailed = errors.New("client write failed")

// ErrShuttingDown is the cancellation cause the server sets on request
// contexts once its drain period is over. Streams cut this way end with an
// error chunk instead of a silent disconnect.
var ErrShuttingDown = errors.New("relay shutting down")

// msgShuttingDown is the error chunk message for streams cut by shutdown.
const msgShuttingDown = "Relay is shutting down, please retry"

// =============================================================================
// Interface Definition
// =============================================================================

// AnalyzeHandler serves POST /api/analyze.
type AnalyzeHandler interface {
	// HandleAnalyze validates the request and relays the analysis stream.
	HandleAnalyze(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// analyzeHandler implements AnalyzeHandler.
//
// # Fields
//
//   - streamer: Provider client. One StreamAnalysis call per request.
//   - tracer: OpenTelemetry tracer.
//   - heartbeatInterval: Keepalive period.
type analyzeHandler struct {
	streamer          upstream.ResponsesStreamer
	tracer            trace.Tracer
	heartbeatInterval time.Duration
}

// NewAnalyzeHandler creates the analyze handler.
//
// # Inputs
//
//   - streamer: Provider client. Must not be nil.
//   - heartbeatInterval: Keepalive period. Zero or negative selects
//     DefaultHeartbeatInterval.
//
// # Outputs
//
//   - AnalyzeHandler: Ready to register on a router.
//
// # Examples
//
//	h := handlers.NewAnalyzeHandler(upstream.NewXAIClient(cfg), 0)
//	router.POST("/api/analyze", h.HandleAnalyze)
func NewAnalyzeHandler(streamer upstream.ResponsesStreamer, heartbeatInterval time.Duration) AnalyzeHandler {
	if streamer == nil {
		panic("NewAnalyzeHandler: streamer must not be nil")
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &analyzeHandler{
		streamer:          streamer,
		tracer:            otel.Tracer("profilescope.relay.handlers.analyze"),
		heartbeatInterval: heartbeatInterval,
	}
}

// =============================================================================
// Handler
// =============================================================================

// HandleAnalyze validates the request and relays the analysis stream.
//
// # Description
//
//  1. Reads at most MaxRequestBodyBytes+1 bytes and validates the body.
//     Failures answer 400 {"error": message} without contacting the provider.
//  2. Sets event-stream headers and opens the chunk writer.
//  3. Starts the keepalive heartbeat.
//  4. Pumps provider events through a per-request Normalizer into the
//     writer, one event at a time, in order.
//  5. Ends with exactly one terminal chunk: done with citations on success,
//     error with a code otherwise. A client disconnect ends the stream
//     without writing anything further.
//
// # Error Codes
//
//   - timeout: analysis deadline exceeded
//   - stream_corrupted: too many unparsable provider events
//   - upstream_error: provider transport or status failure
//   - internal: relay-side failure
func (h *analyzeHandler) HandleAnalyze(c *gin.Context) {
	startTime := time.Now()
	requestID := middleware.GetRequestID(c)

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleAnalyze")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	// Step 1: Read and validate the request
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, datatypes.MaxRequestBodyBytes+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read request")
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: datatypes.MsgInvalidJSON})
		return
	}

	req, err := datatypes.ParseAnalyzeRequest(body)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		slog.Warn("Rejected analyze request",
			"request_id", requestID,
			"reason", err.Error(),
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(observability.EndpointAnalyze, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
		return
	}

	endpoint := observability.EndpointAnalyze
	if req.IsComparison() {
		endpoint = observability.EndpointCompare
	}
	span.SetAttributes(
		attribute.String("analysis.handles", strings.Join(req.Handles, ",")),
		attribute.String("analysis.endpoint", string(endpoint)),
	)

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		}
	}()

	// Step 2: Open the stream
	SetSSEHeaders(c.Writer)
	writer, err := NewChunkWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create chunk writer",
			"error", err,
			"request_id", requestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "Streaming not supported"})
		return
	}
	c.Status(http.StatusOK)
	c.Writer.Flush()

	slog.Info("Analysis stream opened",
		"request_id", requestID,
		"handles", req.Handles,
		"model", h.streamer.Model(),
	)

	// Step 3: Heartbeat
	stopHeartbeat := h.startHeartbeat(ctx, writer, endpoint)

	// Step 4: Pump provider events
	norm := normalizer.New()
	var chunkCount int
	var firstChunkTime time.Time

	streamErr := h.streamer.StreamAnalysis(ctx, req.Handles, func(event upstream.ProviderEvent) error {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordReasoningTokens(h.streamer.Model(), event.ReasoningTokens())
		}
		for _, chunk := range norm.Normalize(event) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writer.WriteChunk(chunk); err != nil {
				return fmt.Errorf("%w: %w", errWriteFailed, err)
			}
			chunkCount++
			if firstChunkTime.IsZero() {
				firstChunkTime = time.Now()
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordChunk(endpoint, string(chunk.Kind))
			}
		}
		return nil
	})

	stopHeartbeat()
	span.SetAttributes(attribute.Int("stream.chunk_count", chunkCount))

	if !firstChunkTime.IsZero() {
		ttfc := firstChunkTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_chunk_seconds", ttfc))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstChunk(endpoint, ttfc)
		}
	}

	// Step 5: Terminal chunk
	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "analysis stream failed")

		if errors.Is(context.Cause(ctx), ErrShuttingDown) {
			slog.Warn("Analysis stream cut by shutdown",
				"request_id", requestID,
				"chunk_count", chunkCount,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInternal)
			}
			if err := writer.WriteError(msgShuttingDown, string(observability.ErrorCodeInternal)); err != nil {
				slog.Debug("Failed to write error chunk", "error", err, "request_id", requestID)
			}
			return
		}

		if errors.Is(streamErr, context.Canceled) || c.Request.Context().Err() != nil {
			slog.Info("Client disconnected during analysis",
				"request_id", requestID,
				"chunk_count", chunkCount,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
			return
		}

		code := classifyError(streamErr)
		slog.Error("Analysis stream failed",
			"error", streamErr,
			"code", code,
			"request_id", requestID,
			"chunk_count", chunkCount,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, code)
		}
		if err := writer.WriteError(upstream.ClientMessage(streamErr), string(code)); err != nil {
			slog.Debug("Failed to write error chunk", "error", err, "request_id", requestID)
		}
		return
	}

	if err := writer.WriteDone(norm.Citations()); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write done chunk",
			"error", err,
			"request_id", requestID,
		)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordChunk(endpoint, string(stream.KindDone))
	}

	slog.Info("Analysis stream completed",
		"request_id", requestID,
		"chunk_count", chunkCount,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
	success = true
	span.SetStatus(codes.Ok, "stream completed successfully")
}

// =============================================================================
// Helpers
// =============================================================================

// startHeartbeat writes keepalives until the returned stop function is
// called or ctx ends. stop blocks until the goroutine has exited, so no
// write races the handler's return.
func (h *analyzeHandler) startHeartbeat(ctx context.Context, writer ChunkWriter, endpoint observability.Endpoint) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					slog.Debug("Failed to write keepalive", "error", err)
					return
				}
				if m := observability.DefaultMetrics; m != nil {
					m.RecordKeepAlive(endpoint)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// classifyError maps a stream failure to its error chunk code.
func classifyError(err error) observability.ErrorCode {
	switch {
	case errors.Is(err, upstream.ErrTimeout):
		return observability.ErrorCodeTimeout
	case errors.Is(err, upstream.ErrStreamCorrupted):
		return observability.ErrorCodeStreamCorrupted
	case errors.Is(err, errWriteFailed), errors.Is(err, upstream.ErrMissingAPIKey):
		return observability.ErrorCodeInternal
	default:
		// *upstream.APIError, ErrNoBody and transport failures.
		return observability.ErrorCodeUpstream
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ AnalyzeHandler = (*analyzeHandler)(nil)
