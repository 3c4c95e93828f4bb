// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upstream

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
	"time"

	"github.com/AleutianAI/profilescope/pkg/sse"
	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("profilescope.upstream.xai")

// =============================================================================
// Struct Definition
// =============================================================================

// XAIClient implements ResponsesStreamer against the xAI Responses API.
//
// # Description
//
// The API key lives in a memguard enclave and is only decrypted while the
// Authorization header of a request is being built. The HTTP client has no
// timeout of its own; the per-analysis deadline is applied through the
// request context so it also bounds reading the stream body.
//
// # Thread Safety
//
// Safe for concurrent use. Each StreamAnalysis call owns its connection.
type XAIClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
	apiKey     *memguard.Enclave
}

// =============================================================================
// Constructors
// =============================================================================

// NewXAIClient creates a provider client from cfg.
//
// # Description
//
// Unset fields fall back to DefaultBaseURL, DefaultModel and DefaultTimeout.
// An empty APIKey is accepted here and reported as ErrMissingAPIKey by
// StreamAnalysis, so the relay can surface it as a stream error.
//
// # Examples
//
//	client := upstream.NewXAIClient(upstream.Config{APIKey: key})
//	err := client.StreamAnalysis(ctx, []string{"jack"}, func(e upstream.ProviderEvent) error {
//	    return nil
//	})
func NewXAIClient(cfg Config) *XAIClient {
	return NewXAIClientWithHTTPClient(&http.Client{}, cfg)
}

// NewXAIClientWithHTTPClient creates a client using the given HTTP client.
// Used by tests to point at an httptest server transport.
func NewXAIClientWithHTTPClient(httpClient *http.Client, cfg Config) *XAIClient {
	cfg = cfg.withDefaults()

	var key *memguard.Enclave
	if cfg.APIKey != "" {
		// NewEnclave wipes the slice it is given.
		key = memguard.NewEnclave([]byte(cfg.APIKey))
	}

	return &XAIClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		apiKey:     key,
	}
}

// Model returns the configured model identifier.
func (c *XAIClient) Model() string {
	return c.model
}

// =============================================================================
// Streaming
// =============================================================================

// StreamAnalysis issues one research request and streams provider events.
//
// # Description
//
// Sends POST {baseURL}/responses with the instruction pair and x_search tool
// declaration for targets, then decodes the event stream. Each parsed event
// is passed to callback in order. The stream ends normally on a [DONE]
// payload or EOF.
//
// Unparsable payloads are skipped and counted. The count resets after every
// successful parse; reaching MaxParseErrors consecutive failures ends the
// stream with ErrStreamCorrupted. Payloads that are valid JSON but do not
// fit the event shape are logged and skipped without counting.
//
// # Inputs
//
//   - ctx: Parent context. Cancelling it closes the connection and returns
//     context.Canceled.
//   - targets: Validated, sanitized handles (at least one).
//   - callback: Receives each event. A returned error aborts the stream.
//
// # Outputs
//
//   - error: nil on normal termination. ErrMissingAPIKey, *APIError,
//     ErrTimeout, ErrStreamCorrupted, ErrNoBody, ctx.Err(), a callback
//     error or a wrapped transport error otherwise.
//
// # Limitations
//
//   - No retries. The caller decides what to do with a failure.
func (c *XAIClient) StreamAnalysis(ctx context.Context, targets []string, callback EventCallback) error {
	ctx, span := tracer.Start(ctx, "XAIClient.StreamAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("analysis.target_count", len(targets)),
		attribute.String("analysis.mode", string(ModeFor(targets))),
	)

	if c.apiKey == nil {
		span.SetStatus(codes.Error, "missing api key")
		return ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	defer cancel()

	resp, err := c.postResponses(ctx, targets)
	if err != nil {
		err = c.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close upstream body", "error", closeErr)
		}
	}()

	if err := checkResponse(resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream status")
		return err
	}

	events, err := c.readStream(ctx, resp.Body, callback)
	span.SetAttributes(attribute.Int("stream.event_count", events))
	if err != nil {
		err = c.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		return err
	}

	span.SetStatus(codes.Ok, "stream completed")
	return nil
}

// postResponses builds and sends the streaming request.
func (c *XAIClient) postResponses(ctx context.Context, targets []string) (*http.Response, error) {
	body, err := json.Marshal(BuildRequest(c.model, targets))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	key, err := c.apiKey.Open()
	if err != nil {
		return nil, fmt.Errorf("open api key: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key.String())
	key.Destroy()

	slog.Debug("Opening upstream stream",
		"model", c.model,
		"targets", targets,
		"url", req.URL.String(),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post responses: %w", err)
	}
	return resp, nil
}

// checkResponse converts a non-2xx response into *APIError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.Body == nil || resp.Body == http.NoBody {
			return ErrNoBody
		}
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr == nil && json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Error.Message
	}

	slog.Error("Upstream returned error status",
		"status_code", resp.StatusCode,
		"message", apiErr.Message,
	)
	return apiErr
}

// readStream decodes the body and dispatches events. It returns the number
// of events delivered to callback.
func (c *XAIClient) readStream(ctx context.Context, body io.Reader, callback EventCallback) (int, error) {
	decoder := sse.NewDecoder(body)
	parseErrors := 0
	delivered := 0

	for {
		payload, err := decoder.Next(ctx)
		if errors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, err
		}

		if sse.IsDone(payload) {
			return delivered, nil
		}

		event, ok, err := decodeEvent(payload)
		if err != nil && decoder.Unterminated() {
			// The connection closed mid-line. Nothing follows it.
			slog.Warn("Dropping truncated final upstream payload", "error", err)
			return delivered, nil
		}
		if err != nil {
			parseErrors++
			slog.Warn("Failed to parse upstream payload",
				"error", err,
				"consecutive_failures", parseErrors,
			)
			if parseErrors >= MaxParseErrors {
				return delivered, ErrStreamCorrupted
			}
			continue
		}

		if !ok {
			continue
		}
		parseErrors = 0

		delivered++
		if err := callback(event); err != nil {
			return delivered, err
		}
	}
}

// decodeEvent parses one payload.
//
// # Description
//
// Returns an error only for syntactically invalid JSON. Valid JSON that is
// not an object returns ok=false. Top-level fields are decoded one at a
// time: a field of an unexpected shape is logged and left zero while the
// rest of the event is kept. List fields drop only entries from which
// nothing could be decoded.
func decodeEvent(payload string) (ProviderEvent, bool, error) {
	var event ProviderEvent
	if !json.Valid([]byte(payload)) {
		return event, false, fmt.Errorf("invalid JSON payload (%d bytes)", len(payload))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil || fields == nil {
		slog.Debug("Dropping non-object upstream payload")
		return event, false, nil
	}

	decodeField(fields, "id", &event.ID)
	decodeField(fields, "object", &event.Object)
	decodeField(fields, "model", &event.Model)
	decodeField(fields, "system_fingerprint", &event.SystemFingerprint)
	decodeField(fields, "usage", &event.Usage)
	event.Choices = decodeList[Choice](fields, "choices")
	event.Output = decodeList[OutputItem](fields, "output")
	event.ToolCalls = decodeList[ToolCall](fields, "tool_calls")
	event.Citations = decodeCitations(fields)
	return event, true, nil
}

// decodeField unmarshals fields[name] into dst. A malformed field is
// logged; members that did decode are kept.
func decodeField(fields map[string]json.RawMessage, name string, dst any) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("Ignoring malformed upstream field", "field", name, "error", err)
	}
}

// decodeList decodes a list field entry by entry. A mistyped member keeps
// the rest of its entry; an entry that yields nothing is skipped. A field
// that is not a list yields nil.
func decodeList[T comparable](fields map[string]json.RawMessage, name string) []T {
	var entries []json.RawMessage
	decodeField(fields, name, &entries)
	if entries == nil {
		return nil
	}

	var zero T
	out := make([]T, 0, len(entries))
	for i, raw := range entries {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			slog.Warn("Ignoring malformed upstream list entry", "field", name, "index", i, "error", err)
		}
		if v == zero {
			continue
		}
		out = append(out, v)
	}
	return out
}

// decodeCitations reads the citation list. Entries may be plain URLs or
// objects carrying a "url" member.
func decodeCitations(fields map[string]json.RawMessage) []string {
	if _, ok := fields["citations"]; !ok {
		return nil
	}
	var entries []json.RawMessage
	decodeField(fields, "citations", &entries)
	if entries == nil {
		return nil
	}

	out := make([]string, 0, len(entries))
	for _, raw := range entries {
		var url string
		if err := json.Unmarshal(raw, &url); err == nil {
			out = append(out, url)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
			out = append(out, obj.URL)
			continue
		}
		slog.Warn("Ignoring malformed upstream citation", "citation", string(raw))
	}
	return out
}

// classify maps context failures onto the package's sentinel errors.
//
// A deadline hit through the per-analysis timeout becomes ErrTimeout. A
// cancelled parent context is returned as ctx.Err() so callers can tell a
// client disconnect apart from a provider failure.
func (c *XAIClient) classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrStreamCorrupted) || errors.Is(err, ErrNoBody) {
		return err
	}
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return ErrTimeout
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
	}
	return err
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ResponsesStreamer = (*XAIClient)(nil)
