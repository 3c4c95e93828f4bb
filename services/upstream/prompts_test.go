// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeProfile, ModeFor([]string{"jack"}))
	assert.Equal(t, ModeProfile, ModeFor(nil))
	assert.Equal(t, ModeComparison, ModeFor([]string{"a", "b"}))
}

func TestUserPrompt_SingleProfile(t *testing.T) {
	got := UserPrompt([]string{"jack"})
	assert.Contains(t, got, "Conduct comprehensive research on the X profile @jack.")
	assert.NotContains(t, got, "comparative")
}

func TestUserPrompt_Comparison(t *testing.T) {
	got := UserPrompt([]string{"a", "b", "c"})
	assert.Contains(t, got, "@a, @b, @c")
	assert.Contains(t, got, "comparative")
}

func TestSystemPrompt(t *testing.T) {
	assert.Contains(t, SystemPrompt(ModeProfile), "Executive Summary")
	assert.Contains(t, SystemPrompt(ModeComparison), "Comparative Assessment")
	assert.NotEqual(t, SystemPrompt(ModeProfile), SystemPrompt(ModeComparison))
}

func TestBuildRequest_WireShape(t *testing.T) {
	targets := []string{"jack"}
	req := BuildRequest("m", targets)

	// The tool declaration must not alias the caller's slice.
	targets[0] = "changed"
	assert.Equal(t, []string{"jack"}, req.Tools[0].AllowedXHandles)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "m", raw["model"])
	assert.Equal(t, true, raw["stream"])

	tools := raw["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "x_search", tool["type"])
	assert.Equal(t, []any{"jack"}, tool["allowed_x_handles"])
	assert.Equal(t, true, tool["enable_image_understanding"])
	assert.Equal(t, true, tool["enable_video_understanding"])
}
