// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"strconv"
	"strings"
)

// queryPreviewLength is the number of query characters shown next to a
// tool call.
const queryPreviewLength = 30

var toolDisplayNames = map[string]string{
	"x_keyword_search":  "Searching posts",
	"x_user_search":     "Searching users",
	"x_semantic_search": "Semantic search",
	"x_thread_fetch":    "Fetching thread",
	"web_search":        "Web search",
	"browse_page":       "Browsing page",
}

// ToolDisplayName returns a human label for a provider tool name.
//
// Unknown names have underscores replaced by spaces and each word
// capitalised: "x_image_lookup" becomes "X Image Lookup".
func ToolDisplayName(name string) string {
	if label, ok := toolDisplayNames[name]; ok {
		return label
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ToolQueryPreview returns the quoted start of the "query" argument, or ""
// when the arguments are not a JSON object with a non-empty query.
func ToolQueryPreview(arguments string) string {
	if arguments == "" {
		return ""
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Query == "" {
		return ""
	}

	runes := []rune(args.Query)
	if len(runes) > queryPreviewLength {
		return `"` + string(runes[:queryPreviewLength]) + `..."`
	}
	return `"` + args.Query + `"`
}

// ThinkingLabel returns "Thinking..." with a grouped token count when one
// is known, e.g. "Thinking... (1,234 tokens)".
func ThinkingLabel(tokens int) string {
	if tokens <= 0 {
		return "Thinking..."
	}
	return "Thinking... (" + groupThousands(tokens) + " tokens)"
}

// groupThousands formats n with comma separators.
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
