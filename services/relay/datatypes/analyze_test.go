// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/AleutianAI/profilescope/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantHandles []string
		wantErr     string
	}{
		{"single", `{"username":"jack"}`, []string{"jack"}, ""},
		{"strips at", `{"username":"  @jack "}`, []string{"jack"}, ""},
		{"fifteen chars", `{"username":"abcdefghijklmno"}`, []string{"abcdefghijklmno"}, ""},
		{"comparison", `{"usernames":["a","@b"]}`, []string{"a", "b"}, ""},
		{"username placed first", `{"usernames":["b"],"username":"a"}`, []string{"a", "b"}, ""},
		{"duplicates collapse to single", `{"usernames":["Jack","@jack"]}`, []string{"Jack"}, ""},
		{"four handles", `{"usernames":["a","b","c","d"]}`, []string{"a", "b", "c", "d"}, ""},
		{"extra fields ignored", `{"username":"jack","debug":true}`, []string{"jack"}, ""},

		{"array body", `["jack"]`, nil, MsgInvalidJSON},
		{"string body", `"jack"`, nil, MsgInvalidJSON},
		{"null body", `null`, nil, MsgInvalidJSON},
		{"malformed", `{"username":`, nil, MsgInvalidJSON},
		{"empty body", ``, nil, MsgInvalidJSON},
		{"empty object", `{}`, nil, validation.MsgUsernameRequired},
		{"empty username", `{"username":""}`, nil, validation.MsgUsernameRequired},
		{"whitespace username", `{"username":"   "}`, nil, validation.MsgUsernameRequired},
		{"numeric username", `{"username":123}`, nil, validation.MsgUsernameRequired},
		{"empty usernames", `{"usernames":[]}`, nil, validation.MsgUsernameRequired},
		{"blank entry", `{"usernames":["a",""]}`, nil, validation.MsgUsernameRequired},
		{"sixteen chars", `{"username":"abcdefghijklmnop"}`, nil, validation.MsgUsernameInvalid},
		{"hyphen", `{"username":"bad-name"}`, nil, validation.MsgUsernameInvalid},
		{"only at", `{"username":"@"}`, nil, validation.MsgUsernameInvalid},
		{"invalid in list", `{"usernames":["ok","no way"]}`, nil, validation.MsgUsernameInvalid},
		{"five handles", `{"usernames":["a","b","c","d","e"]}`, nil, validation.MsgTooManyUsernames},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseAnalyzeRequest([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				var vErr *validation.Error
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHandles, req.Handles)
		})
	}
}

func TestParseAnalyzeRequest_BodySize(t *testing.T) {
	prefix := `{"username":"jack","pad":"`
	suffix := `"}`

	atLimit := prefix + strings.Repeat("x", MaxRequestBodyBytes-len(prefix)-len(suffix)) + suffix
	require.Len(t, atLimit, MaxRequestBodyBytes)
	_, err := ParseAnalyzeRequest([]byte(atLimit))
	assert.NoError(t, err)

	overLimit := prefix + strings.Repeat("x", MaxRequestBodyBytes-len(prefix)-len(suffix)+1) + suffix
	_, err = ParseAnalyzeRequest([]byte(overLimit))
	require.Error(t, err)
	assert.Equal(t, MsgBodyTooLarge, err.Error())
}

func TestAnalyzeRequest_IsComparison(t *testing.T) {
	assert.False(t, (&AnalyzeRequest{Handles: []string{"a"}}).IsComparison())
	assert.True(t, (&AnalyzeRequest{Handles: []string{"a", "b"}}).IsComparison())
}

func TestAnalyzeRequest_Validate_UsesXHandleTag(t *testing.T) {
	err := (&AnalyzeRequest{Handles: []string{"@jack"}}).Validate()
	require.Error(t, err)
	assert.Equal(t, validation.MsgUsernameInvalid, err.Error())

	assert.NoError(t, (&AnalyzeRequest{Handles: []string{"jack_1"}}).Validate())
}
