// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"github.com/AleutianAI/profilescope/pkg/stream"
)

// =============================================================================
// Report State
// =============================================================================

// ToolCall is one research action shown in the progress indicator.
type ToolCall struct {
	Name      string
	Arguments string
}

// ReportState is the display state derived from a chunk sequence.
//
// # Description
//
// ReportState is a pure fold over chunks: it holds no reference to the
// chunks it was built from, and folding the same chunks again yields an
// equal value.
//
//   - Content: concatenation of content chunks in arrival order.
//   - ToolCalls: tool invocations in arrival order.
//   - Thinking: true once any thinking chunk was seen.
//   - ReasoningTokens: latest non-zero count carried by a thinking chunk.
//   - Citations: taken from the done chunk.
//   - Complete: true once a done chunk was folded.
type ReportState struct {
	Content         string
	ToolCalls       []ToolCall
	Thinking        bool
	ReasoningTokens int
	Citations       []string
	Complete        bool
}

// Apply folds one chunk into the state.
//
// # Description
//
// Error chunks carry no display content and leave the state unchanged;
// callers surface them separately.
//
// # Inputs
//
//   - c: Next chunk in arrival order.
func (s *ReportState) Apply(c stream.Chunk) {
	switch c.Kind {
	case stream.KindContent:
		s.Content += c.Text
	case stream.KindToolCall:
		if c.Tool != nil {
			s.ToolCalls = append(s.ToolCalls, ToolCall{Name: c.Tool.Name, Arguments: c.Tool.Arguments})
		}
	case stream.KindThinking:
		s.Thinking = true
		if c.ReasoningTokens > 0 {
			s.ReasoningTokens = c.ReasoningTokens
		}
	case stream.KindDone:
		s.Complete = true
		s.Citations = append([]string(nil), c.Citations...)
	}
}

// Accumulate folds chunks into a fresh ReportState.
//
// # Examples
//
//	state := ux.Accumulate(chunks)
//	fmt.Println(state.Content)
func Accumulate(chunks []stream.Chunk) ReportState {
	var s ReportState
	for _, c := range chunks {
		s.Apply(c)
	}
	return s
}

// HasProgress reports whether the tool-call indicator has anything to show.
func (s ReportState) HasProgress() bool {
	return s.Thinking || len(s.ToolCalls) > 0
}
