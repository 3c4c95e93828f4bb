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
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
)

// MaxCitationPreview is the number of sources listed under a finished
// report before the remainder is summarised as "+N more".
const MaxCitationPreview = 5

const (
	reportTitle      = "Research Report"
	statusGenerating = "Generating report..."
	statusComplete   = "Report complete"
)

// CitationPreview returns the citations to list and how many were left out.
func CitationPreview(citations []string) ([]string, int) {
	if len(citations) <= MaxCitationPreview {
		return citations, 0
	}
	return citations[:MaxCitationPreview], len(citations) - MaxCitationPreview
}

// ToolCallLine renders one entry of the progress indicator without styling,
// e.g. `Searching posts "ai agents"`.
func ToolCallLine(call ToolCall) string {
	line := ToolDisplayName(call.Name)
	if preview := ToolQueryPreview(call.Arguments); preview != "" {
		line += " " + preview
	}
	return line
}

// =============================================================================
// Report Renderer Interface
// =============================================================================

// ReportRenderer turns a ReportState into display text.
//
// # Description
//
// Render is called with the whole state on every redraw; implementations
// keep no state between calls. While streaming is true the header reads
// "Generating report..." and the progress indicator is shown. Once
// streaming ends the header reads "Report complete" and citations are
// listed.
type ReportRenderer interface {
	Render(state ReportState, streaming bool) string
}

// NewRenderer returns a plain renderer when plain is true and a lipgloss
// renderer otherwise.
func NewRenderer(plain bool) ReportRenderer {
	if plain {
		return NewPlainRenderer()
	}
	return NewTerminalRenderer()
}

// =============================================================================
// Terminal Renderer
// =============================================================================

// terminalRenderer renders with lipgloss styles.
type terminalRenderer struct{}

// NewTerminalRenderer creates a styled renderer for interactive terminals.
func NewTerminalRenderer() ReportRenderer {
	return terminalRenderer{}
}

func (terminalRenderer) Render(state ReportState, streaming bool) string {
	var b strings.Builder

	b.WriteString(Styles.Title.Render(reportTitle))
	b.WriteString("\n")
	if streaming {
		b.WriteString(IconPulse.Render() + " " + Styles.Muted.Render(statusGenerating))
	} else {
		b.WriteString(IconSuccess.Render() + " " + Styles.Muted.Render(statusComplete))
	}
	b.WriteString("\n")

	if progress := terminalProgress(state, streaming); progress != "" {
		b.WriteString(Styles.Progress.Render(progress))
		b.WriteString("\n")
	}

	for _, section := range BuildReportSections(GroupIntoSections(ParseMarkdown(state.Content))) {
		b.WriteString(Styles.Heading.Render(section.Title))
		b.WriteString("\n")
		for _, group := range section.Content {
			writeTerminalGroup(&b, group)
		}
	}

	if !streaming && len(state.Citations) > 0 {
		shown, more := CitationPreview(state.Citations)
		b.WriteString("\n")
		b.WriteString(Styles.Muted.Render("Sources:"))
		b.WriteString("\n")
		for _, c := range shown {
			b.WriteString("  " + Styles.Muted.Render(c) + "\n")
		}
		if more > 0 {
			b.WriteString("  " + Styles.Muted.Render(fmt.Sprintf("+%d more", more)) + "\n")
		}
	}

	return b.String()
}

func terminalProgress(state ReportState, streaming bool) string {
	thinking := state.Thinking && streaming
	if !thinking && len(state.ToolCalls) == 0 {
		return ""
	}
	var lines []string
	if thinking {
		lines = append(lines, Styles.Muted.Render(ThinkingLabel(state.ReasoningTokens)))
	}
	for _, call := range state.ToolCalls {
		icon := IconPending
		if strings.Contains(call.Name, "search") {
			icon = IconSearch
		}
		line := icon.Render() + " " + ToolDisplayName(call.Name)
		if preview := ToolQueryPreview(call.Arguments); preview != "" {
			line += " " + Styles.Muted.Render(preview)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func writeTerminalGroup(b *strings.Builder, group Section) {
	switch group.Kind {
	case SectionHeading:
		for _, item := range group.Items {
			b.WriteString(Styles.Subhead.Render(item.Content) + "\n")
		}
	case SectionList:
		for _, item := range group.Items {
			b.WriteString("  " + IconBullet.Render() + " " + styleInline(item.Content) + "\n")
		}
	default:
		for _, item := range group.Items {
			b.WriteString(styleInline(item.Content) + "\n")
		}
	}
	b.WriteString("\n")
}

var (
	termBold   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	termItalic = regexp.MustCompile(`\*(.+?)\*|_(.+?)_`)
)

// styleInline applies terminal styles in place of inline markdown markers.
func styleInline(text string) string {
	s := linkPattern.ReplaceAllString(text, "$1")
	s = codePattern.ReplaceAllStringFunc(s, func(m string) string {
		return Styles.Code.Render(strings.Trim(m, "`"))
	})
	s = termBold.ReplaceAllStringFunc(s, func(m string) string {
		return Styles.Bold.Render(m[2 : len(m)-2])
	})
	s = termItalic.ReplaceAllStringFunc(s, func(m string) string {
		return Styles.Italic.Render(m[1 : len(m)-1])
	})
	return s
}

// =============================================================================
// Plain Renderer
// =============================================================================

// plainRenderer renders unstyled text for pipes and --plain.
type plainRenderer struct{}

// NewPlainRenderer creates a renderer that emits no escape sequences.
func NewPlainRenderer() ReportRenderer {
	return plainRenderer{}
}

func (plainRenderer) Render(state ReportState, streaming bool) string {
	var b strings.Builder

	b.WriteString(reportTitle + "\n")
	if streaming {
		b.WriteString(statusGenerating + "\n")
		if state.Thinking {
			b.WriteString(ThinkingLabel(state.ReasoningTokens) + "\n")
		}
	} else {
		b.WriteString(statusComplete + "\n")
	}
	for _, call := range state.ToolCalls {
		b.WriteString("> " + ToolCallLine(call) + "\n")
	}

	if text := PlainTextReport(state.Content); text != "" {
		b.WriteString("\n" + text + "\n")
	}

	if !streaming {
		writePlainCitations(&b, state.Citations)
	}
	return b.String()
}

func writePlainCitations(w io.Writer, citations []string) {
	if len(citations) == 0 {
		return
	}
	shown, more := CitationPreview(citations)
	fmt.Fprintln(w, "\nSources:")
	for _, c := range shown {
		fmt.Fprintln(w, "  "+c)
	}
	if more > 0 {
		fmt.Fprintf(w, "  +%d more\n", more)
	}
}

// =============================================================================
// Incremental Stream Printer
// =============================================================================

// StreamPrinter writes a report incrementally as state updates arrive.
//
// # Description
//
// Used when output is not redrawn in place (pipes, --plain). Each Update
// prints only what is new since the previous call: report text goes to
// out, progress lines (tool calls, thinking) go to progress. Finish writes
// the citations footer.
//
// # Thread Safety
//
// All methods are protected by a mutex.
type StreamPrinter struct {
	out      io.Writer
	progress io.Writer

	mu           sync.Mutex
	contentLen   int
	toolsPrinted int
	thinkingSeen bool
	finished     bool
}

// NewStreamPrinter creates a printer writing report text to out and
// progress lines to progress.
func NewStreamPrinter(out, progress io.Writer) *StreamPrinter {
	return &StreamPrinter{out: out, progress: progress}
}

// Update prints the parts of state not yet printed. A state whose content
// is shorter than what was already printed belongs to a new analysis and
// must follow a Reset.
func (p *StreamPrinter) Update(state ReportState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	if state.Thinking && !p.thinkingSeen {
		p.thinkingSeen = true
		fmt.Fprintln(p.progress, ThinkingLabel(state.ReasoningTokens))
	}
	for ; p.toolsPrinted < len(state.ToolCalls); p.toolsPrinted++ {
		fmt.Fprintln(p.progress, "> "+ToolCallLine(state.ToolCalls[p.toolsPrinted]))
	}
	if len(state.Content) > p.contentLen {
		io.WriteString(p.out, state.Content[p.contentLen:])
		p.contentLen = len(state.Content)
	}
}

// Finish flushes any remaining text and prints the citations footer.
// Calls after the first are no-ops until Reset.
func (p *StreamPrinter) Finish(state ReportState) {
	p.Update(state)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true

	if p.contentLen > 0 && !strings.HasSuffix(state.Content, "\n") {
		fmt.Fprintln(p.out)
	}
	writePlainCitations(p.out, state.Citations)
}

// Reset prepares the printer for a new analysis.
func (p *StreamPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentLen = 0
	p.toolsPrinted = 0
	p.thinkingSeen = false
	p.finished = false
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ ReportRenderer = terminalRenderer{}
	_ ReportRenderer = plainRenderer{}
)
