// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"reflect"
	"testing"

	"github.com/AleutianAI/profilescope/pkg/stream"
)

func sampleChunks() []stream.Chunk {
	return []stream.Chunk{
		stream.NewThinking(120),
		stream.NewToolCall("x_keyword_search", `{"query":"from:jack"}`, 130),
		stream.NewThinking(0),
		stream.NewContent("# Summary\n", 140),
		stream.NewContent("Builds things.", 0),
		stream.NewToolCall("x_user_search", "", 0),
		stream.NewDone([]string{"https://x.com/jack/status/1"}),
	}
}

// =============================================================================
// Accumulate Tests
// =============================================================================

func TestAccumulate_FoldsChunks(t *testing.T) {
	state := Accumulate(sampleChunks())

	if state.Content != "# Summary\nBuilds things." {
		t.Errorf("Content = %q", state.Content)
	}
	wantCalls := []ToolCall{
		{Name: "x_keyword_search", Arguments: `{"query":"from:jack"}`},
		{Name: "x_user_search"},
	}
	if !reflect.DeepEqual(state.ToolCalls, wantCalls) {
		t.Errorf("ToolCalls = %+v, want %+v", state.ToolCalls, wantCalls)
	}
	if !state.Thinking {
		t.Error("expected Thinking to be true")
	}
	if state.ReasoningTokens != 120 {
		t.Errorf("ReasoningTokens = %d, want 120 (zero counts must not overwrite)", state.ReasoningTokens)
	}
	if !state.Complete {
		t.Error("expected Complete after done chunk")
	}
	if !reflect.DeepEqual(state.Citations, []string{"https://x.com/jack/status/1"}) {
		t.Errorf("Citations = %v", state.Citations)
	}
}

func TestAccumulate_ContentConcatenationInOrder(t *testing.T) {
	chunks := []stream.Chunk{
		stream.NewContent("a", 0),
		stream.NewContent("b", 0),
		stream.NewContent("c", 0),
	}
	if got := Accumulate(chunks).Content; got != "abc" {
		t.Errorf("Content = %q, want %q", got, "abc")
	}
}

func TestAccumulate_Empty(t *testing.T) {
	state := Accumulate(nil)
	if state.Complete || state.Thinking || state.Content != "" || len(state.ToolCalls) != 0 {
		t.Errorf("expected zero state, got %+v", state)
	}
	if state.HasProgress() {
		t.Error("zero state has no progress")
	}
}

func TestAccumulate_Idempotent(t *testing.T) {
	chunks := sampleChunks()
	first := Accumulate(chunks)
	second := Accumulate(chunks)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay differs:\n%+v\n%+v", first, second)
	}
}

func TestApply_MatchesAccumulate(t *testing.T) {
	chunks := sampleChunks()
	for n := 0; n <= len(chunks); n++ {
		var incremental ReportState
		for _, c := range chunks[:n] {
			incremental.Apply(c)
		}
		if !reflect.DeepEqual(incremental, Accumulate(chunks[:n])) {
			t.Errorf("prefix %d: incremental fold differs from Accumulate", n)
		}
	}
}

func TestApply_IgnoresErrorChunk(t *testing.T) {
	var state ReportState
	state.Apply(stream.NewContent("partial", 0))
	state.Apply(stream.NewError("boom", "upstream_error"))

	if state.Content != "partial" || state.Complete {
		t.Errorf("error chunk changed state: %+v", state)
	}
}

func TestApply_CitationsAreCopied(t *testing.T) {
	citations := []string{"https://x.com/a"}
	var state ReportState
	state.Apply(stream.NewDone(citations))

	citations[0] = "changed"
	if state.Citations[0] != "https://x.com/a" {
		t.Error("state must not alias the chunk's citation slice")
	}
}

func TestHasProgress(t *testing.T) {
	if !(ReportState{Thinking: true}).HasProgress() {
		t.Error("thinking state has progress")
	}
	if !(ReportState{ToolCalls: []ToolCall{{Name: "web_search"}}}).HasProgress() {
		t.Error("tool call state has progress")
	}
}
