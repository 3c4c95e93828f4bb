// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Encoding Tests
// =============================================================================

func TestChunk_MarshalJSON_WireShapes(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		want  string
	}{
		{
			name:  "content with tokens",
			chunk: NewContent("Hello", 12),
			want:  `{"type":"content","data":"Hello","reasoningTokens":12}`,
		},
		{
			name:  "content without tokens omits field",
			chunk: NewContent("Hello", 0),
			want:  `{"type":"content","data":"Hello"}`,
		},
		{
			name:  "thinking",
			chunk: NewThinking(120),
			want:  `{"type":"thinking","data":"Thinking... (120 tokens)","reasoningTokens":120}`,
		},
		{
			name:  "tool call",
			chunk: NewToolCall("x_keyword_search", `{"query":"go"}`, 0),
			want:  `{"type":"tool_call","data":{"name":"x_keyword_search","arguments":"{\"query\":\"go\"}"}}`,
		},
		{
			name:  "done without citations still carries array",
			chunk: NewDone(nil),
			want:  `{"type":"done","data":"Analysis complete","citations":[]}`,
		},
		{
			name:  "done with citations",
			chunk: NewDone([]string{"https://x.com/a/status/1"}),
			want:  `{"type":"done","data":"Analysis complete","citations":["https://x.com/a/status/1"]}`,
		},
		{
			name:  "error without code",
			chunk: NewError("boom", ""),
			want:  `{"type":"error","data":{"message":"boom"}}`,
		},
		{
			name:  "error with code",
			chunk: NewError("Request timeout: Analysis took too long", "timeout"),
			want:  `{"type":"error","data":{"message":"Request timeout: Analysis took too long","code":"timeout"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.chunk)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestChunk_MarshalJSON_RejectsInvalid(t *testing.T) {
	_, err := json.Marshal(Chunk{Kind: "bogus"})
	require.Error(t, err)

	_, err = json.Marshal(Chunk{Kind: KindToolCall})
	assert.Error(t, err, "tool_call without payload must not encode")

	_, err = json.Marshal(Chunk{Kind: KindError})
	assert.Error(t, err, "error without payload must not encode")
}

// =============================================================================
// Decoding Tests
// =============================================================================

func TestChunk_UnmarshalJSON_ToolCall(t *testing.T) {
	var c Chunk
	err := json.Unmarshal([]byte(`{"type":"tool_call","data":{"name":"web_search","arguments":"not json"},"reasoningTokens":3}`), &c)
	require.NoError(t, err)

	assert.Equal(t, KindToolCall, c.Kind)
	require.NotNil(t, c.Tool)
	assert.Equal(t, "web_search", c.Tool.Name)
	assert.Equal(t, "not json", c.Tool.Arguments)
	assert.Equal(t, 3, c.ReasoningTokens)
}

func TestChunk_UnmarshalJSON_DoneCitations(t *testing.T) {
	var c Chunk
	err := json.Unmarshal([]byte(`{"type":"done","data":"Analysis complete","citations":["a","b"]}`), &c)
	require.NoError(t, err)

	assert.True(t, c.IsTerminal())
	assert.Equal(t, []string{"a", "b"}, c.Citations)
	assert.Equal(t, DoneMessage, c.Text)
}

func TestChunk_UnmarshalJSON_ErrorStringData(t *testing.T) {
	var c Chunk
	err := json.Unmarshal([]byte(`{"type":"error","data":"plain message"}`), &c)
	require.NoError(t, err)

	assert.Equal(t, "plain message", c.ErrorMessage())
}

func TestChunk_UnmarshalJSON_UnknownType(t *testing.T) {
	var c Chunk
	err := json.Unmarshal([]byte(`{"type":"status","data":"x"}`), &c)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestChunk_UnmarshalJSON_Malformed(t *testing.T) {
	var c Chunk
	assert.Error(t, json.Unmarshal([]byte(`{"type":"content","data":`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"content","data":{"x":1}}`), &c))
}

func TestChunk_IsTerminal(t *testing.T) {
	assert.False(t, NewContent("a", 0).IsTerminal())
	assert.False(t, NewThinking(1).IsTerminal())
	assert.False(t, NewToolCall("a", "", 0).IsTerminal())
	assert.True(t, NewDone(nil).IsTerminal())
	assert.True(t, NewError("x", "").IsTerminal())
}
