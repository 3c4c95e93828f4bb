// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sse

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains a decoder into a slice of payloads.
func collect(t *testing.T, r io.Reader) []string {
	t.Helper()

	d := NewDecoder(r)
	var out []string
	for {
		p, err := d.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestDecoder_BasicFraming(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"

	got := collect(t, strings.NewReader(input))

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, DoneSentinel}, got)
	assert.True(t, IsDone(got[2]))
}

func TestDecoder_SkipsNonDataLines(t *testing.T) {
	input := ": ping\n\nevent: message\nid: 7\ndata: x\n\nretry: 100\n"

	got := collect(t, strings.NewReader(input))

	assert.Equal(t, []string{"x"}, got)
}

func TestDecoder_NoSpaceAfterColonAndCRLF(t *testing.T) {
	input := "data:{\"a\":1}\r\n\r\ndata: y \r\n"

	got := collect(t, strings.NewReader(input))

	assert.Equal(t, []string{`{"a":1}`, "y"}, got)
}

// TestDecoder_PartialLinesAcrossReads feeds one byte per Read call so every
// line spans many read boundaries.
func TestDecoder_PartialLinesAcrossReads(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello world\"}}]}\n\ndata: [DONE]\n\n"

	got := collect(t, iotest.OneByteReader(strings.NewReader(input)))

	require.Len(t, got, 2)
	assert.Equal(t, `{"choices":[{"delta":{"content":"Hello world"}}]}`, got[0])
}

func TestDecoder_UnterminatedFinalLine(t *testing.T) {
	got := collect(t, strings.NewReader("data: first\n\ndata: last"))

	assert.Equal(t, []string{"first", "last"}, got)
}

func TestDecoder_UnterminatedReportsCutOffLine(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(strings.NewReader("data: first\n\ndata: {\"partial\"")))
	ctx := context.Background()

	p, err := d.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", p)
	assert.False(t, d.Unterminated())

	p, err = d.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"partial"`, p)
	assert.True(t, d.Unterminated())

	_, err = d.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_TerminatedFinalLine(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: last\r\n"))

	p, err := d.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", p)
	assert.False(t, d.Unterminated())
}

func TestDecoder_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDecoder(strings.NewReader("data: x\n"))
	_, err := d.Next(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecoder_LongLine(t *testing.T) {
	long := strings.Repeat("a", 200*1024)

	got := collect(t, strings.NewReader("data: "+long+"\n"))

	require.Len(t, got, 1)
	assert.Len(t, got[0], len(long))
}

func TestParseDataLine(t *testing.T) {
	tests := []struct {
		line    string
		payload string
		ok      bool
	}{
		{"data: hi", "hi", true},
		{"data:hi", "hi", true},
		{"data:", "", true},
		{"", "", false},
		{": comment", "", false},
		{"event: done", "", false},
		{"datum: x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p, ok := ParseDataLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.payload, p)
		})
	}
}

func TestFormatData(t *testing.T) {
	assert.Equal(t, "data: {}\n\n", string(FormatData([]byte("{}"))))
	assert.Equal(t, ": ping\n\n", string(Comment("ping")))
}
