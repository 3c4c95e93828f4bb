// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/profilescope/pkg/sse"
	"github.com/AleutianAI/profilescope/pkg/stream"
)

// ErrStreamClosed is returned for writes after a terminal chunk.
var ErrStreamClosed = errors.New("stream already terminated")

// =============================================================================
// Interface Definition
// =============================================================================

// ChunkWriter writes relay chunks to an event-stream response.
//
// # Description
//
// Each chunk is framed as "data: <JSON>\n\n" and flushed immediately. Once a
// terminal chunk (done or error) has been written, every further write,
// keepalives included, fails with ErrStreamClosed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The heartbeat goroutine
// and the pump share one writer.
//
// # Assumptions
//
//   - Caller has called SetSSEHeaders before the first write
type ChunkWriter interface {
	// WriteChunk frames, writes and flushes one chunk.
	WriteChunk(chunk stream.Chunk) error

	// WriteError writes a terminal error chunk.
	WriteError(message, code string) error

	// WriteDone writes the terminal done chunk with citations.
	WriteDone(citations []string) error

	// WriteKeepAlive writes a ": ping" comment.
	WriteKeepAlive() error

	// Closed reports whether a terminal chunk has been written.
	Closed() bool
}

// =============================================================================
// Struct Definition
// =============================================================================

// chunkWriter implements ChunkWriter over an http.ResponseWriter.
type chunkWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	closed  bool
	mu      sync.Mutex
}

// NewChunkWriter creates a ChunkWriter for w.
//
// # Outputs
//
//   - ChunkWriter: Ready to write.
//   - error: Non-nil if w does not support flushing.
//
// # Examples
//
//	SetSSEHeaders(c.Writer)
//	writer, err := NewChunkWriter(c.Writer)
//	if err != nil {
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
//	    return
//	}
//	_ = writer.WriteChunk(stream.NewContent("Hello", 0))
//	_ = writer.WriteDone(nil)
func NewChunkWriter(w http.ResponseWriter) (ChunkWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &chunkWriter{writer: w, flusher: flusher}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteChunk frames, writes and flushes one chunk.
//
// A terminal chunk closes the writer even if the write itself fails, so no
// later chunk can follow it.
func (w *chunkWriter) WriteChunk(chunk stream.Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrStreamClosed
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}

	if chunk.IsTerminal() {
		w.closed = true
	}

	if _, err := w.writer.Write(sse.FormatData(data)); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteError writes a terminal error chunk.
func (w *chunkWriter) WriteError(message, code string) error {
	return w.WriteChunk(stream.NewError(message, code))
}

// WriteDone writes the terminal done chunk.
func (w *chunkWriter) WriteDone(citations []string) error {
	return w.WriteChunk(stream.NewDone(citations))
}

// WriteKeepAlive writes an event-stream comment. Consumers ignore it, but it
// resets idle timers on proxies between relay and client.
func (w *chunkWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrStreamClosed
	}
	if _, err := w.writer.Write(sse.Comment("ping")); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Closed reports whether a terminal chunk has been written.
func (w *chunkWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures response headers for event streaming. Must be
// called before the first write.
//
// X-Accel-Buffering disables nginx response buffering.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ChunkWriter = (*chunkWriter)(nil)
