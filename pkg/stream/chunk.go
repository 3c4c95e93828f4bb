// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream defines the chunk protocol spoken between the relay server
// and its clients.
//
// # Description
//
// A Chunk is one unit of the relay's outbound event stream. Each chunk is
// framed on the wire as a single SSE data line:
//
//	data: {"type":"content","data":"Executive Summary..."}
//
// The "data" field is polymorphic: a string for content, thinking and done
// chunks, an object for tool_call and error chunks. Chunk implements
// json.Marshaler and json.Unmarshaler so callers never deal with the raw
// union.
//
// # Thread Safety
//
// Chunk is a value type. Values are safe to share once constructed.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// Kinds
// =============================================================================

// Kind identifies the variant carried by a Chunk.
type Kind string

const (
	// KindContent carries a fragment of report text.
	KindContent Kind = "content"

	// KindThinking carries an advisory status while the model reasons.
	KindThinking Kind = "thinking"

	// KindToolCall records the upstream agent invoking a named capability.
	KindToolCall Kind = "tool_call"

	// KindDone is the terminal success marker and carries citations.
	KindDone Kind = "done"

	// KindError is the terminal failure marker.
	KindError Kind = "error"
)

// DoneMessage is the data string carried by every done chunk.
const DoneMessage = "Analysis complete"

// ErrUnknownKind is returned when decoding a chunk with an unrecognized type.
var ErrUnknownKind = errors.New("unknown chunk type")

// IsValid reports whether k is one of the five protocol kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindContent, KindThinking, KindToolCall, KindDone, KindError:
		return true
	}
	return false
}

// =============================================================================
// Payload Types
// =============================================================================

// ToolCallData describes one tool invocation by the upstream agent.
//
// Arguments is intended to be JSON but is passed through verbatim and is not
// guaranteed to parse.
type ToolCallData struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ErrorData is the payload of an error chunk.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// =============================================================================
// Chunk
// =============================================================================

// Chunk is a tagged variant over the five protocol kinds.
//
// # Fields
//
//   - Kind: Which variant this chunk is.
//   - Text: Data string for content, thinking and done chunks.
//   - Tool: Payload for tool_call chunks.
//   - Err: Payload for error chunks.
//   - ReasoningTokens: Provider-reported reasoning effort, 0 when absent.
//   - Citations: Source URLs, only meaningful on done chunks.
//
// # Invariants
//
//   - After a done or error chunk no further chunks are valid on a stream.
type Chunk struct {
	Kind            Kind
	Text            string
	Tool            *ToolCallData
	Err             *ErrorData
	ReasoningTokens int
	Citations       []string
}

// wireChunk is the JSON shape of a Chunk.
type wireChunk struct {
	Type            Kind            `json:"type"`
	Data            json.RawMessage `json:"data"`
	ReasoningTokens *int            `json:"reasoningTokens,omitempty"`
	Citations       *[]string       `json:"citations,omitempty"`
}

// NewContent builds a content chunk.
func NewContent(text string, reasoningTokens int) Chunk {
	return Chunk{Kind: KindContent, Text: text, ReasoningTokens: reasoningTokens}
}

// NewThinking builds the thinking chunk emitted while the model reasons
// without producing visible text.
func NewThinking(reasoningTokens int) Chunk {
	return Chunk{
		Kind:            KindThinking,
		Text:            fmt.Sprintf("Thinking... (%d tokens)", reasoningTokens),
		ReasoningTokens: reasoningTokens,
	}
}

// NewToolCall builds a tool_call chunk.
func NewToolCall(name, arguments string, reasoningTokens int) Chunk {
	return Chunk{
		Kind:            KindToolCall,
		Tool:            &ToolCallData{Name: name, Arguments: arguments},
		ReasoningTokens: reasoningTokens,
	}
}

// NewDone builds the terminal success chunk. A nil citation list is encoded
// as an empty array.
func NewDone(citations []string) Chunk {
	if citations == nil {
		citations = []string{}
	}
	return Chunk{Kind: KindDone, Text: DoneMessage, Citations: citations}
}

// NewError builds the terminal failure chunk. code may be empty.
func NewError(message, code string) Chunk {
	return Chunk{Kind: KindError, Err: &ErrorData{Message: message, Code: code}}
}

// IsTerminal reports whether the chunk ends a stream.
func (c Chunk) IsTerminal() bool {
	return c.Kind == KindDone || c.Kind == KindError
}

// ErrorMessage returns the error message of an error chunk, or "" otherwise.
func (c Chunk) ErrorMessage() string {
	if c.Err == nil {
		return ""
	}
	return c.Err.Message
}

// MarshalJSON implements json.Marshaler.
//
// # Description
//
// Encodes the chunk in the relay wire shape. Content, thinking and done
// chunks carry a string "data"; tool_call and error chunks carry an object.
// Done chunks always carry a "citations" array, even when empty.
//
// # Outputs
//
//   - []byte: Encoded JSON.
//   - error: Non-nil if the kind is invalid or a payload is missing.
func (c Chunk) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch c.Kind {
	case KindContent, KindThinking, KindDone:
		data, err = json.Marshal(c.Text)
	case KindToolCall:
		if c.Tool == nil {
			return nil, fmt.Errorf("tool_call chunk without payload")
		}
		data, err = json.Marshal(c.Tool)
	case KindError:
		if c.Err == nil {
			return nil, fmt.Errorf("error chunk without payload")
		}
		data, err = json.Marshal(c.Err)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal chunk data: %w", err)
	}

	w := wireChunk{Type: c.Kind, Data: data}
	if c.ReasoningTokens != 0 {
		tokens := c.ReasoningTokens
		w.ReasoningTokens = &tokens
	}
	if c.Kind == KindDone {
		citations := c.Citations
		if citations == nil {
			citations = []string{}
		}
		w.Citations = &citations
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
//
// # Description
//
// Decodes the wire shape, interpreting "data" according to "type". An error
// chunk whose data is a bare string is accepted and treated as the message.
//
// # Outputs
//
//   - error: Wraps ErrUnknownKind for unrecognized types, or the JSON error.
func (c *Chunk) UnmarshalJSON(b []byte) error {
	var w wireChunk
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}

	out := Chunk{Kind: w.Type}
	if w.Citations != nil {
		out.Citations = *w.Citations
	}
	if w.ReasoningTokens != nil {
		out.ReasoningTokens = *w.ReasoningTokens
	}

	switch w.Type {
	case KindContent, KindThinking, KindDone:
		if len(w.Data) > 0 && string(w.Data) != "null" {
			if err := json.Unmarshal(w.Data, &out.Text); err != nil {
				return fmt.Errorf("decode %s data: %w", w.Type, err)
			}
		}
	case KindToolCall:
		var tool ToolCallData
		if err := json.Unmarshal(w.Data, &tool); err != nil {
			return fmt.Errorf("decode tool_call data: %w", err)
		}
		out.Tool = &tool
	case KindError:
		var ed ErrorData
		if err := json.Unmarshal(w.Data, &ed); err != nil {
			var msg string
			if strErr := json.Unmarshal(w.Data, &msg); strErr != nil {
				return fmt.Errorf("decode error data: %w", err)
			}
			ed.Message = msg
		}
		out.Err = &ed
	}

	*c = out
	return nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ json.Marshaler   = Chunk{}
	_ json.Unmarshaler = (*Chunk)(nil)
)
