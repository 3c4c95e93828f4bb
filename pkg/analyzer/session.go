// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer is the client side of the relay's analysis stream.
//
// # Description
//
// A Session submits handles to the relay, decodes the chunk stream it
// answers with and publishes the accumulated report state after every
// chunk. At most one analysis is active per session; starting a new one
// cancels the previous one, and a superseded analysis never touches the
// session's state again.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/AleutianAI/profilescope/pkg/sse"
	"github.com/AleutianAI/profilescope/pkg/stream"
	"github.com/AleutianAI/profilescope/pkg/ux"
	"github.com/AleutianAI/profilescope/pkg/validation"
)

// =============================================================================
// Constants & Errors
// =============================================================================

const (
	// DefaultBaseURL is the relay address used when Config.BaseURL is empty.
	DefaultBaseURL = "http://localhost:3000"

	// AnalyzePath is the relay endpoint that starts an analysis.
	AnalyzePath = "/api/analyze"

	// MsgStartFailed is shown when the relay rejects a request without
	// saying why.
	MsgStartFailed = "Failed to start analysis"

	// MsgAnalysisError is shown for an error chunk without a message.
	MsgAnalysisError = "Analysis error"
)

var (
	// ErrClosed is returned by Start and Retry after Close.
	ErrClosed = errors.New("analysis session is closed")

	// ErrNothingToRetry is returned by Retry before any analysis started.
	ErrNothingToRetry = errors.New("no previous analysis to retry")
)

// AnalysisError is a failure reported by the relay, either as a non-200
// response or as an error chunk in the stream.
type AnalysisError struct {
	Message string
	// Code is the error chunk's code, empty for HTTP failures.
	Code string
	// StatusCode is the HTTP status for rejected requests, 0 for stream
	// errors.
	StatusCode int
}

func (e *AnalysisError) Error() string {
	return e.Message
}

// =============================================================================
// Types
// =============================================================================

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Snapshot is a copy of a session's observable state.
type Snapshot struct {
	Analyzing bool
	// Error is the message of the last failed analysis, empty otherwise.
	Error   string
	Handles []string
	// Chunks is read-only. Snapshots passed to OnUpdate share it with the
	// session; later chunks never show through it.
	Chunks []stream.Chunk
	Report ux.ReportState
}

// Result is the outcome of one Start call.
type Result struct {
	Handles []string
	Chunks  []stream.Chunk
	Report  ux.ReportState
	// Canceled is true when the analysis was aborted by Cancel, Close, a
	// newer Start or the caller's context.
	Canceled bool
}

// Config configures a Session.
type Config struct {
	// BaseURL is the relay root, e.g. "http://localhost:3000".
	BaseURL string

	// Client performs requests. Defaults to an http.Client without
	// timeout; analyses are long-lived and bounded by the relay.
	Client HTTPClient

	// OnUpdate, if set, receives a snapshot after every state change. It is
	// called from the goroutine running Start, never concurrently for the
	// same session, and must not block for long.
	OnUpdate func(Snapshot)
}

// Session runs analyses against the relay.
//
// # Description
//
// Session holds the state of the current analysis: the handles, every
// chunk received in order and the report folded from them. Start blocks
// while the stream is read; Cancel, Close and Snapshot may be called from
// other goroutines.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Every Start takes a new
// generation number; updates from an older generation are discarded.
type Session struct {
	baseURL  string
	client   HTTPClient
	onUpdate func(Snapshot)

	// notifyMu serialises OnUpdate calls.
	notifyMu sync.Mutex

	mu          sync.Mutex
	generation  uint64
	cancel      context.CancelFunc
	closed      bool
	lastHandles []string
	state       Snapshot
}

// NewSession creates a Session from cfg.
//
// # Examples
//
//	s := analyzer.NewSession(analyzer.Config{
//	    BaseURL:  "http://localhost:3000",
//	    OnUpdate: func(snap analyzer.Snapshot) { render(snap.Report) },
//	})
//	defer s.Close()
//	result, err := s.Start(ctx, "jack")
func NewSession(cfg Config) *Session {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Session{
		baseURL:  baseURL,
		client:   client,
		onUpdate: cfg.OnUpdate,
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start runs one analysis of handles and blocks until it ends.
//
// # Description
//
// Handles are validated and sanitized locally first; a validation failure
// is recorded as the session error and returned as *validation.Error
// without contacting the relay. Otherwise any in-flight analysis is
// cancelled, state is reset and the request is sent: one handle as
// {"username"}, several as {"usernames"}.
//
// The stream is read until the first done chunk, the first error chunk or
// the end of the body. Empty, [DONE] and unparsable payloads are skipped.
//
// # Inputs
//
//   - ctx: Cancelling it aborts the analysis like Cancel.
//   - handles: One handle for a profile report, 2-4 for a comparison.
//
// # Outputs
//
//   - Result: Chunks and report received so far. Canceled is set when the
//     analysis was aborted; the error is nil in that case.
//   - error: *validation.Error, *AnalysisError, ErrClosed or a transport
//     error.
func (s *Session) Start(ctx context.Context, handles ...string) (Result, error) {
	sanitized, err := validation.SanitizeAll(handles)
	if err != nil {
		s.mu.Lock()
		s.state.Error = err.Error()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return Result{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lastHandles = sanitized
	s.state = Snapshot{Analyzing: true, Handles: sanitized}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	result, runErr := s.run(runCtx, gen, sanitized)
	cancel()

	s.mu.Lock()
	current := s.generation == gen
	if current {
		s.cancel = nil
		s.state.Analyzing = false
		if runErr != nil {
			s.state.Error = runErr.Error()
		}
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if current {
		s.notify(snap)
	}

	return result, runErr
}

// Retry re-runs the most recent analysis with the same handles.
func (s *Session) Retry(ctx context.Context) (Result, error) {
	s.mu.Lock()
	handles := append([]string(nil), s.lastHandles...)
	s.mu.Unlock()

	if len(handles) == 0 {
		return Result{}, ErrNothingToRetry
	}
	return s.Start(ctx, handles...)
}

// Cancel aborts the in-flight analysis, if any. The aborted Start returns
// with Result.Canceled set and no error.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Close cancels the in-flight analysis and rejects further starts.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	snap.Chunks = append([]stream.Chunk(nil), snap.Chunks...)
	return snap
}

// snapshotLocked publishes the current state without copying chunks.
// s.state.Chunks is append-only within a generation, so capping the view
// at its length keeps it stable: later appends land beyond the cap or in a
// new array.
func (s *Session) snapshotLocked() Snapshot {
	snap := s.state
	snap.Handles = append([]string(nil), s.state.Handles...)
	n := len(s.state.Chunks)
	snap.Chunks = s.state.Chunks[:n:n]
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.onUpdate == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onUpdate(snap)
}

// =============================================================================
// Streaming
// =============================================================================

// run performs the request and reads the stream for generation gen.
func (s *Session) run(ctx context.Context, gen uint64, handles []string) (Result, error) {
	result := Result{Handles: handles}

	resp, err := s.postAnalyze(ctx, handles)
	if err != nil {
		if ctx.Err() != nil {
			result.Canceled = true
			return result, nil
		}
		return result, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			slog.Debug("failed to close relay response body", "error", err)
		}
	}(resp.Body)

	if err := validateResponse(resp); err != nil {
		return result, err
	}

	decoder := sse.NewDecoder(resp.Body)
	for {
		payload, err := decoder.Next(ctx)
		if ctx.Err() != nil {
			result.Canceled = true
			return result, nil
		}
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}

		if payload == "" || sse.IsDone(payload) {
			continue
		}

		var chunk stream.Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("Skipping unparsable chunk", "error", err, "line", decoder.Lines())
			continue
		}

		if chunk.Kind == stream.KindError {
			msg := chunk.ErrorMessage()
			if msg == "" {
				msg = MsgAnalysisError
			}
			aerr := &AnalysisError{Message: msg}
			if chunk.Err != nil {
				aerr.Code = chunk.Err.Code
			}
			return result, aerr
		}

		if !s.appendChunk(gen, chunk, &result) {
			result.Canceled = true
			return result, nil
		}

		if chunk.Kind == stream.KindDone {
			return result, nil
		}
	}
}

// appendChunk records chunk for generation gen and publishes the new
// state. It returns false when gen has been superseded.
func (s *Session) appendChunk(gen uint64, chunk stream.Chunk, result *Result) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.state.Chunks = append(s.state.Chunks, chunk)
	s.state.Report.Apply(chunk)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	result.Chunks = snap.Chunks
	result.Report = snap.Report
	s.notify(snap)
	return true
}

// postAnalyze sends the analysis request.
func (s *Session) postAnalyze(ctx context.Context, handles []string) (*http.Response, error) {
	var payload any
	if len(handles) == 1 {
		payload = map[string]string{"username": handles[0]}
	} else {
		payload = map[string][]string{"usernames": handles}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+AnalyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("Analysis request failed", "url", req.URL.String(), "error", err)
		return nil, fmt.Errorf("http post: %w", err)
	}
	return resp, nil
}

// validateResponse turns a non-200 status into *AnalysisError carrying the
// relay's {"error"} message.
func validateResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	aerr := &AnalysisError{Message: MsgStartFailed, StatusCode: resp.StatusCode}

	var payload struct {
		Error string `json:"error"`
	}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr == nil && json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		aerr.Message = payload.Error
	}

	slog.Warn("Relay rejected analysis",
		"status_code", resp.StatusCode,
		"message", aerr.Message,
	)
	return aerr
}
