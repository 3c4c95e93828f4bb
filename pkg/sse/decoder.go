// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sse implements the event-stream framing shared by the upstream
// reader and the client consumer.
//
// Both ends of the relay speak the same framing:
//
//	data: <payload>\n
//	\n
//
// A literal [DONE] payload marks normal termination of provider streams.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	// DoneSentinel is the payload that terminates a provider stream.
	DoneSentinel = "[DONE]"

	// initialBufferSize is the scanner's starting line buffer.
	initialBufferSize = 64 * 1024

	// MaxLineSize bounds a single line. Provider events carrying long
	// reasoning summaries can exceed the bufio default of 64KB.
	MaxLineSize = 10 * 1024 * 1024
)

// =============================================================================
// Decoder
// =============================================================================

// Decoder extracts data payloads from an event stream.
//
// # Description
//
// Decoder buffers bytes until a full line is available, so a line split
// across read boundaries is only parsed once complete. A final line without
// a trailing newline is still delivered at EOF. Lines that are not data
// lines (blank separators, ":" comments, "event:", "id:", "retry:") are
// skipped.
//
// # Thread Safety
//
// Not safe for concurrent use. One goroutine owns a Decoder.
type Decoder struct {
	scanner *bufio.Scanner
	lines   int

	// unterminated is set when the last scanned line ended at EOF without
	// a newline.
	unterminated bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{}
	d.scanner = bufio.NewScanner(r)
	d.scanner.Buffer(make([]byte, 0, initialBufferSize), MaxLineSize)
	d.scanner.Split(d.splitLines)
	return d
}

// splitLines is bufio.ScanLines that also records whether the returned
// line was cut off by EOF.
func (d *Decoder) splitLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if token != nil {
		d.unterminated = atEOF && data[advance-1] != '\n'
	}
	return advance, token, err
}

// Next returns the next data payload.
//
// # Description
//
// Blocks until a data line is available. The "data:" prefix and one optional
// space are removed and the payload is trimmed. The DoneSentinel is returned
// like any other payload; callers decide what it means for them.
//
// # Inputs
//
//   - ctx: Checked between lines. Cancellation returns ctx.Err().
//
// # Outputs
//
//   - string: The payload. May be empty for a bare "data:" line.
//   - error: io.EOF at the end of the stream, ctx.Err() on cancellation,
//     or the underlying read error.
func (d *Decoder) Next(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return "", fmt.Errorf("read event stream: %w", err)
			}
			return "", io.EOF
		}
		d.lines++

		payload, ok := ParseDataLine(d.scanner.Text())
		if !ok {
			continue
		}
		return payload, nil
	}
}

// Unterminated reports whether the payload last returned by Next came from
// a final line with no trailing newline. Such a line may have been cut off
// mid-write by the peer.
func (d *Decoder) Unterminated() bool {
	return d.unterminated
}

// Lines returns how many raw lines have been consumed so far.
func (d *Decoder) Lines() int {
	return d.lines
}

// =============================================================================
// Line Helpers
// =============================================================================

// ParseDataLine extracts the payload of a single "data:" line.
//
// Returns ok=false for any line that is not a data line.
func ParseDataLine(line string) (payload string, ok bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload = strings.TrimPrefix(line, "data:")
	payload = strings.TrimPrefix(payload, " ")
	return strings.TrimSpace(payload), true
}

// IsDone reports whether payload is the stream terminator.
func IsDone(payload string) bool {
	return payload == DoneSentinel
}

// FormatData frames payload as one event: "data: <payload>\n\n".
func FormatData(payload []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(payload) + 8)
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")
	return b.Bytes()
}

// Comment frames a comment line. Comments keep idle connections open and
// are ignored by decoders.
func Comment(text string) []byte {
	return []byte(": " + text + "\n\n")
}
