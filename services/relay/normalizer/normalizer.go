// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalizer maps provider events onto relay chunks.
package normalizer

import (
	"log/slog"

	"github.com/AleutianAI/profilescope/pkg/stream"
	"github.com/AleutianAI/profilescope/services/upstream"
)

// Normalizer converts the provider's event shapes into stream chunks.
//
// # Description
//
// A Normalizer is created per request. Apart from the citation list, which
// accumulates across events with last-write-wins semantics, Normalize is a
// pure function of its input event.
//
// # Thread Safety
//
// Not safe for concurrent use. The relay pump owns one Normalizer.
type Normalizer struct {
	citations []string
}

// New creates an empty Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize maps one provider event to zero or more chunks.
//
// # Description
//
// Applied in order:
//
//  1. A non-nil citations list replaces the recorded one.
//  2. Each choice with non-empty delta content becomes a content chunk.
//  3. Each output item becomes a content chunk, preferring delta content
//     over text.
//  4. Each top-level tool call with a function becomes a tool_call chunk.
//  5. Reasoning tokens with no choice content become a thinking chunk.
//
// Every chunk carries the event's reasoning token count. Events matching
// none of the rules return nil.
//
// # Inputs
//
//   - event: One decoded provider event.
//
// # Outputs
//
//   - []stream.Chunk: Chunks in emission order. Never terminal.
//
// # Examples
//
//	n := normalizer.New()
//	chunks := n.Normalize(event)
//	done := n.Done()
func (n *Normalizer) Normalize(event upstream.ProviderEvent) []stream.Chunk {
	if event.Citations != nil {
		n.citations = append([]string{}, event.Citations...)
	}

	tokens := event.ReasoningTokens()
	var chunks []stream.Chunk

	choiceContent := false
	for _, choice := range event.Choices {
		if choice.Delta == nil || choice.Delta.Content == "" {
			continue
		}
		choiceContent = true
		chunks = append(chunks, stream.NewContent(choice.Delta.Content, tokens))
	}

	for _, item := range event.Output {
		text := item.Text
		if item.Delta != nil && item.Delta.Content != "" {
			text = item.Delta.Content
		}
		if text == "" {
			continue
		}
		chunks = append(chunks, stream.NewContent(text, tokens))
	}

	for _, call := range event.ToolCalls {
		if call.Function == nil {
			continue
		}
		chunks = append(chunks, stream.NewToolCall(call.Function.Name, string(call.Function.Arguments), tokens))
	}

	if tokens > 0 && !choiceContent {
		chunks = append(chunks, stream.NewThinking(tokens))
	}

	if len(chunks) == 0 && event.Citations == nil {
		slog.Debug("Provider event produced no chunks",
			"event_id", event.ID,
			"object", event.Object,
		)
	}
	return chunks
}

// Citations returns a copy of the last recorded citation list, or nil.
func (n *Normalizer) Citations() []string {
	if n.citations == nil {
		return nil
	}
	return append([]string{}, n.citations...)
}

// Done builds the terminal success chunk with the recorded citations.
func (n *Normalizer) Done() stream.Chunk {
	return stream.NewDone(n.Citations())
}

// NormalizeAll folds a whole event sequence through a fresh Normalizer and
// appends the done chunk.
func NormalizeAll(events []upstream.ProviderEvent) []stream.Chunk {
	n := New()
	var chunks []stream.Chunk
	for _, event := range events {
		chunks = append(chunks, n.Normalize(event)...)
	}
	return append(chunks, n.Done())
}
