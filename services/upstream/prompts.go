// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"fmt"
	"strings"
)

// Mode selects the instruction template.
type Mode string

const (
	// ModeProfile researches a single profile.
	ModeProfile Mode = "profile"

	// ModeComparison researches several profiles side by side.
	ModeComparison Mode = "comparison"
)

// ModeFor returns ModeComparison for more than one target.
func ModeFor(targets []string) Mode {
	if len(targets) > 1 {
		return ModeComparison
	}
	return ModeProfile
}

const profileSystemPrompt = `You are an expert social media analyst specializing in comprehensive profile research. Your task is to conduct thorough research on X (Twitter) profiles and generate detailed, professional research reports.

When analyzing a profile, you should:
1. Search across different time periods to understand posting patterns and evolution
2. Identify key themes, topics, and interests
3. Analyze engagement patterns and audience interaction
4. Highlight notable posts, threads, or content
5. Provide insights into the account's communication style and content strategy
6. Note any significant changes or trends over time

Structure your report with:
- Executive Summary
- Time Period Analysis (recent, mid-term, long-term)
- Key Themes & Topics
- Engagement Patterns
- Notable Posts/Threads
- Overall Assessment

Be thorough, objective, and professional in your analysis.`

const comparisonSystemPrompt = `You are an expert social media analyst specializing in comparative profile research. Your task is to research several X (Twitter) profiles and generate a detailed, professional report that compares them side by side.

For each profile, you should:
1. Search across different time periods to understand posting patterns and evolution
2. Identify key themes, topics, and interests
3. Analyze engagement patterns and audience interaction
4. Highlight notable posts, threads, or content

Then compare the profiles directly: where their themes overlap or diverge, how their engagement differs, and how their communication styles contrast.

Structure your report with:
- Executive Summary
- Profile Overviews (one subsection per profile)
- Key Themes & Topics Compared
- Engagement Patterns Compared
- Notable Posts/Threads
- Comparative Assessment

Be thorough, objective, and professional in your analysis. Attribute every observation to the profile it concerns.`

// SystemPrompt returns the system instruction for mode.
func SystemPrompt(mode Mode) string {
	if mode == ModeComparison {
		return comparisonSystemPrompt
	}
	return profileSystemPrompt
}

// UserPrompt returns the user instruction embedding the formatted handles.
func UserPrompt(targets []string) string {
	if ModeFor(targets) == ModeComparison {
		handles := make([]string, len(targets))
		for i, t := range targets {
			handles[i] = "@" + t
		}
		return fmt.Sprintf("Conduct comprehensive comparative research on the X profiles %s. "+
			"Analyze each profile's posts across different time periods, identify their key themes and topics, "+
			"examine their engagement patterns, and highlight notable content. Provide a detailed research report "+
			"that compares their posting behavior, content strategy, and overall profile characteristics.",
			strings.Join(handles, ", "))
	}

	handle := ""
	if len(targets) == 1 {
		handle = targets[0]
	}
	return fmt.Sprintf("Conduct comprehensive research on the X profile @%s. "+
		"Analyze their posts across different time periods, identify key themes and topics, "+
		"examine engagement patterns, and highlight notable content. Provide a detailed research report "+
		"with insights into their posting behavior, content strategy, and overall profile characteristics.",
		handle)
}

// =============================================================================
// Request Body
// =============================================================================

// InputMessage is one instruction in the request input.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDeclaration enables the provider's X search capability for the
// allowed handles.
type ToolDeclaration struct {
	Type                     string   `json:"type"`
	AllowedXHandles          []string `json:"allowed_x_handles"`
	EnableImageUnderstanding bool     `json:"enable_image_understanding"`
	EnableVideoUnderstanding bool     `json:"enable_video_understanding"`
}

// ResponsesRequest is the JSON body POSTed to {base}/responses.
type ResponsesRequest struct {
	Model  string            `json:"model"`
	Input  []InputMessage    `json:"input"`
	Tools  []ToolDeclaration `json:"tools"`
	Stream bool              `json:"stream"`
}

// BuildRequest assembles the request body for targets. Targets must already
// be validated and sanitized.
func BuildRequest(model string, targets []string) ResponsesRequest {
	allowed := make([]string, len(targets))
	copy(allowed, targets)

	return ResponsesRequest{
		Model: model,
		Input: []InputMessage{
			{Role: "system", Content: SystemPrompt(ModeFor(targets))},
			{Role: "user", Content: UserPrompt(targets)},
		},
		Tools: []ToolDeclaration{{
			Type:                     "x_search",
			AllowedXHandles:          allowed,
			EnableImageUnderstanding: true,
			EnableVideoUnderstanding: true,
		}},
		Stream: true,
	}
}
