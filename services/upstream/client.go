// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package upstream talks to the agentic LLM provider that performs profile
// research.
//
// # Description
//
// The provider exposes a "responses" endpoint that streams provider events
// as an event stream. This package opens exactly one request per analysis,
// decodes the stream into ProviderEvent values and hands each one to a
// callback. It never retries: a single attempt bounded by a hard timeout.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultBaseURL is the provider API root.
	DefaultBaseURL = "https://api.x.ai/v1"

	// DefaultModel is the reasoning model used for research.
	DefaultModel = "grok-4-1-fast-reasoning-latest"

	// DefaultTimeout bounds one analysis end to end. Reasoning models can
	// spend tens of minutes on tool use before producing text.
	DefaultTimeout = time.Hour

	// MaxParseErrors is the number of consecutive unparsable payloads after
	// which the stream is treated as corrupted.
	MaxParseErrors = 10
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMissingAPIKey is returned before any network I/O when no key is set.
	ErrMissingAPIKey = errors.New("upstream API key is not configured")

	// ErrTimeout is returned when the analysis exceeds Config.Timeout.
	ErrTimeout = errors.New("upstream request timed out")

	// ErrStreamCorrupted is returned after MaxParseErrors consecutive
	// unparsable payloads.
	ErrStreamCorrupted = errors.New("upstream stream corrupted")

	// ErrNoBody is returned when a successful response carries no body.
	ErrNoBody = errors.New("upstream response has no body")
)

// APIError is a non-success HTTP status from the provider.
type APIError struct {
	StatusCode int
	Status     string
	// Message is the provider's error.message when the body carried one.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != "" {
		return "xAI API error: " + e.Status
	}
	return fmt.Sprintf("xAI API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientMessage maps an upstream error to the message shown to end users.
//
// # Description
//
// Timeouts, corruption and a missing key have fixed messages. Provider
// status errors pass the provider's own message through. Anything else
// keeps its text when it is an upstream transport failure, since the relay
// exposes those verbatim.
func ClientMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "Request timeout: Analysis took too long"
	case errors.Is(err, ErrStreamCorrupted):
		return "Too many parsing errors, stream may be corrupted"
	case errors.Is(err, ErrMissingAPIKey):
		return "XAI_API_KEY environment variable is not set"
	case errors.Is(err, ErrNoBody):
		return "No response body received from xAI API"
	case errors.As(err, &apiErr):
		return apiErr.Error()
	default:
		return err.Error()
	}
}

// =============================================================================
// Provider Event Types
// =============================================================================

// ProviderEvent is one parsed payload of the provider stream.
//
// # Description
//
// Providers emit either a choice-based layout (chat-completions style) or
// an output-based layout (responses style). Both are decoded into this one
// struct; absent fields stay zero. Tool calls appear at the top level of
// the event, not inside choices.
type ProviderEvent struct {
	ID                string       `json:"id,omitempty"`
	Object            string       `json:"object,omitempty"`
	Model             string       `json:"model,omitempty"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
	Choices           []Choice     `json:"choices,omitempty"`
	Output            []OutputItem `json:"output,omitempty"`
	ToolCalls         []ToolCall   `json:"tool_calls,omitempty"`
	Usage             *Usage       `json:"usage,omitempty"`
	// Citations is nil when the event carries no citation list and non-nil
	// (possibly empty) when it does.
	Citations []string `json:"citations,omitempty"`
}

// Delta is an incremental text fragment.
type Delta struct {
	Content string `json:"content,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Choice is one entry of the choice-based layout.
type Choice struct {
	Index int    `json:"index"`
	Delta *Delta `json:"delta,omitempty"`
}

// OutputItem is one entry of the output-based layout. Some revisions put
// the text under delta.content, others directly under text.
type OutputItem struct {
	Index int    `json:"index"`
	Delta *Delta `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ToolCall is one tool invocation reported by the provider.
type ToolCall struct {
	Function *FunctionCall `json:"function,omitempty"`
}

// FunctionCall names the invoked capability and its raw arguments.
type FunctionCall struct {
	Name      string       `json:"name"`
	Arguments RawArguments `json:"arguments"`
}

// RawArguments holds tool arguments as a string.
//
// Providers normally send a JSON-encoded string. When they send a bare
// object instead, its raw JSON text is kept so the event still decodes.
type RawArguments string

// UnmarshalJSON implements json.Unmarshaler.
func (a *RawArguments) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = RawArguments(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = RawArguments(b)
	return nil
}

// Usage carries provider token accounting.
type Usage struct {
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Counts sent as floats or
// numeric strings are accepted; anything else reads as 0.
func (u *Usage) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	u.ReasoningTokens = tokenCount(fields["reasoning_tokens"])
	u.PromptTokens = tokenCount(fields["prompt_tokens"])
	u.CompletionTokens = tokenCount(fields["completion_tokens"])
	u.TotalTokens = tokenCount(fields["total_tokens"])
	return nil
}

func tokenCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
		return 0
	}
	return int(n)
}

// ReasoningTokens returns the event's reasoning token count, 0 when absent.
func (e ProviderEvent) ReasoningTokens() int {
	if e.Usage == nil {
		return 0
	}
	return e.Usage.ReasoningTokens
}

// =============================================================================
// Interface Definition
// =============================================================================

// EventCallback receives provider events in stream order. Returning an error
// aborts the stream; StreamAnalysis returns that error unchanged.
type EventCallback func(event ProviderEvent) error

// ResponsesStreamer opens one streaming research request.
//
// # Description
//
// StreamAnalysis blocks until the provider stream ends. It returns nil on
// normal termination ([DONE] or EOF), and a non-nil error for a missing
// key, transport failure, non-success status, timeout, stream corruption,
// context cancellation or a callback error.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; each call owns its own
// connection and state.
type ResponsesStreamer interface {
	StreamAnalysis(ctx context.Context, targets []string, callback EventCallback) error

	// Model returns the configured model identifier.
	Model() string
}

// Config configures the provider client. All fields are optional except
// APIKey, whose absence is reported on first use.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
