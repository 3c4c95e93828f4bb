// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/AleutianAI/profilescope/pkg/stream"
	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeEvent parses a provider payload the way the upstream reader does.
func decodeEvent(t *testing.T, payload string) upstream.ProviderEvent {
	t.Helper()
	var event upstream.ProviderEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	return event
}

func TestNormalize_ContentThenDone(t *testing.T) {
	n := New()

	var chunks []stream.Chunk
	for _, payload := range []string{
		`{"choices":[{"delta":{"content":"A"}}]}`,
		`{"choices":[{"delta":{"content":"B"}}]}`,
	} {
		chunks = append(chunks, n.Normalize(decodeEvent(t, payload))...)
	}
	chunks = append(chunks, n.Done())

	require.Len(t, chunks, 3)
	assert.Equal(t, stream.NewContent("A", 0), chunks[0])
	assert.Equal(t, stream.NewContent("B", 0), chunks[1])
	assert.Equal(t, stream.KindDone, chunks[2].Kind)
	assert.Equal(t, stream.DoneMessage, chunks[2].Text)
	assert.Equal(t, []string{}, chunks[2].Citations)
}

func TestNormalize_Rules(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []stream.Chunk
	}{
		{
			name:    "choice content carries reasoning tokens",
			payload: `{"choices":[{"delta":{"content":"hi"}}],"usage":{"reasoning_tokens":7}}`,
			want:    []stream.Chunk{stream.NewContent("hi", 7)},
		},
		{
			name:    "multiple choices in order",
			payload: `{"choices":[{"delta":{"content":"a"}},{"delta":{}},{"delta":{"content":"b"}}]}`,
			want:    []stream.Chunk{stream.NewContent("a", 0), stream.NewContent("b", 0)},
		},
		{
			name:    "output prefers delta content",
			payload: `{"output":[{"delta":{"content":"delta"},"text":"text"}]}`,
			want:    []stream.Chunk{stream.NewContent("delta", 0)},
		},
		{
			name:    "output falls back to text",
			payload: `{"output":[{"text":"plain"},{"text":""}]}`,
			want:    []stream.Chunk{stream.NewContent("plain", 0)},
		},
		{
			name:    "top level tool call",
			payload: `{"tool_calls":[{"function":{"name":"x_keyword_search","arguments":"{\"query\":\"go\"}"}},{}]}`,
			want:    []stream.Chunk{stream.NewToolCall("x_keyword_search", `{"query":"go"}`, 0)},
		},
		{
			name:    "reasoning only becomes thinking",
			payload: `{"usage":{"reasoning_tokens":120}}`,
			want:    []stream.Chunk{stream.NewThinking(120)},
		},
		{
			name:    "tool call during reasoning",
			payload: `{"tool_calls":[{"function":{"name":"web_search","arguments":"{}"}}],"usage":{"reasoning_tokens":5}}`,
			want: []stream.Chunk{
				stream.NewToolCall("web_search", "{}", 5),
				stream.NewThinking(5),
			},
		},
		{
			name:    "choice content suppresses thinking",
			payload: `{"choices":[{"delta":{"content":"x"}}],"usage":{"reasoning_tokens":3}}`,
			want:    []stream.Chunk{stream.NewContent("x", 3)},
		},
		{
			name:    "unrecognized event",
			payload: `{"id":"evt_1","object":"response.created"}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().Normalize(decodeEvent(t, tt.payload))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ThinkingText(t *testing.T) {
	chunks := New().Normalize(decodeEvent(t, `{"usage":{"reasoning_tokens":42}}`))
	require.Len(t, chunks, 1)
	assert.Equal(t, "Thinking... (42 tokens)", chunks[0].Text)
	assert.Equal(t, 42, chunks[0].ReasoningTokens)
}

func TestNormalize_CitationsLastWriteWins(t *testing.T) {
	n := New()
	n.Normalize(decodeEvent(t, `{"citations":["https://a"]}`))
	n.Normalize(decodeEvent(t, `{"choices":[{"delta":{"content":"x"}}]}`))
	n.Normalize(decodeEvent(t, `{"citations":["https://b","https://c"]}`))

	done := n.Done()
	assert.Equal(t, []string{"https://b", "https://c"}, done.Citations)

	// An explicit empty list also replaces.
	n.Normalize(decodeEvent(t, `{"citations":[]}`))
	assert.Equal(t, []string{}, n.Done().Citations)
}

func TestNormalize_CitationsAreCopied(t *testing.T) {
	n := New()
	n.Normalize(decodeEvent(t, `{"citations":["https://a"]}`))

	got := n.Citations()
	got[0] = "mutated"
	assert.Equal(t, []string{"https://a"}, n.Citations())
}

func TestNormalize_NeverTerminal(t *testing.T) {
	chunks := New().Normalize(decodeEvent(t,
		`{"choices":[{"delta":{"content":"a"}}],"output":[{"text":"b"}],"tool_calls":[{"function":{"name":"n","arguments":""}}],"usage":{"reasoning_tokens":1}}`))
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.False(t, c.IsTerminal())
	}
}

func TestNormalizeAll(t *testing.T) {
	events := []upstream.ProviderEvent{
		decodeEvent(t, `{"choices":[{"delta":{"content":"A"}}]}`),
		decodeEvent(t, `{"citations":["https://x.com/1"]}`),
		decodeEvent(t, `{"choices":[{"delta":{"content":"B"}}]}`),
	}

	chunks := NormalizeAll(events)
	require.Len(t, chunks, 3)
	assert.Equal(t, "A", chunks[0].Text)
	assert.Equal(t, "B", chunks[1].Text)
	assert.Equal(t, stream.NewDone([]string{"https://x.com/1"}), chunks[2])

	// Pure: replaying yields the same result.
	assert.Equal(t, chunks, NormalizeAll(events))
}
