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
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// Line Classification
// =============================================================================

// TextKind classifies one line of report text.
type TextKind string

const (
	TextHeading   TextKind = "heading"
	TextListItem  TextKind = "listItem"
	TextParagraph TextKind = "paragraph"
)

// FormattedText is one classified, marker-stripped line.
type FormattedText struct {
	Kind    TextKind
	Content string
	// Level is 1-6 for headings, 0 otherwise.
	Level int
}

var (
	headingPattern     = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	bulletPattern      = regexp.MustCompile(`^[-*]\s+(.+)$`)
	orderedItemPattern = regexp.MustCompile(`^\d+\.\s+(.+)$`)
)

// ParseMarkdown splits report text into classified lines.
//
// # Description
//
// Lines are trimmed and blank lines dropped. "#".."######" prefixes become
// headings, "-", "*" and "N." prefixes become list items, and everything
// else is a paragraph. Inline markup is left in Content for
// FormatInlineText.
//
// # Examples
//
//	items := ux.ParseMarkdown("# Summary\n- one\n- two\nText")
//	// heading(1) "Summary", listItem "one", listItem "two", paragraph "Text"
func ParseMarkdown(text string) []FormattedText {
	var out []FormattedText
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			out = append(out, FormattedText{Kind: TextHeading, Content: m[2], Level: len(m[1])})
			continue
		}
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			out = append(out, FormattedText{Kind: TextListItem, Content: m[1]})
			continue
		}
		if m := orderedItemPattern.FindStringSubmatch(line); m != nil {
			out = append(out, FormattedText{Kind: TextListItem, Content: m[1]})
			continue
		}
		out = append(out, FormattedText{Kind: TextParagraph, Content: line})
	}
	return out
}

// =============================================================================
// Grouping
// =============================================================================

// SectionKind is the kind of a grouped run of lines.
type SectionKind string

const (
	SectionHeading   SectionKind = "heading"
	SectionList      SectionKind = "list"
	SectionParagraph SectionKind = "paragraph"
)

// Section is a run of lines of one kind. Heading sections hold exactly one
// item.
type Section struct {
	Kind  SectionKind
	Items []FormattedText
}

// GroupIntoSections merges consecutive list items and consecutive
// paragraphs. Every heading starts its own section.
func GroupIntoSections(items []FormattedText) []Section {
	var sections []Section
	var current *Section

	flush := func() {
		if current != nil {
			sections = append(sections, *current)
			current = nil
		}
	}

	for _, item := range items {
		var kind SectionKind
		switch item.Kind {
		case TextHeading:
			flush()
			current = &Section{Kind: SectionHeading, Items: []FormattedText{item}}
			continue
		case TextListItem:
			kind = SectionList
		default:
			kind = SectionParagraph
		}

		if current == nil || current.Kind != kind {
			flush()
			current = &Section{Kind: kind}
		}
		current.Items = append(current.Items, item)
	}
	flush()
	return sections
}

// DefaultSectionTitle names content that precedes the first heading.
const DefaultSectionTitle = "Report"

// ReportSection is a titled block of the report.
type ReportSection struct {
	Title   string
	Level   int
	Content []Section
}

// BuildReportSections splits grouped sections at headings.
//
// # Description
//
// Each heading opens a ReportSection titled with the heading text. Content
// before the first heading is collected under DefaultSectionTitle.
func BuildReportSections(sections []Section) []ReportSection {
	var out []ReportSection
	var current *ReportSection

	for _, s := range sections {
		if s.Kind == SectionHeading && len(s.Items) > 0 {
			if current != nil {
				out = append(out, *current)
			}
			current = &ReportSection{Title: s.Items[0].Content, Level: s.Items[0].Level}
			continue
		}
		if current == nil {
			current = &ReportSection{Title: DefaultSectionTitle}
		}
		current.Content = append(current.Content, s)
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

// =============================================================================
// Inline Formatting
// =============================================================================

var (
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)

	boldStarPattern       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderscorePattern = regexp.MustCompile(`__(.+?)__`)
	italicStarPattern     = regexp.MustCompile(`\*(.+?)\*`)
	italicUnderPattern    = regexp.MustCompile(`_(.+?)_`)
	linkPattern           = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	codePattern           = regexp.MustCompile("`([^`]+)`")

	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	extraNewlines   = regexp.MustCompile(`\n{3,}`)
	plainCodeMarker = regexp.MustCompile("`(.+?)`")
)

// FormatInlineText converts inline markdown in one line to safe HTML.
//
// # Description
//
// The text is HTML-escaped first, so provider output can never inject
// markup. Bold becomes <strong>, italic becomes <em>, inline code becomes
// <code>, and links keep their text only.
func FormatInlineText(text string) string {
	s := htmlEscaper.Replace(text)
	s = boldStarPattern.ReplaceAllString(s, "<strong>$1</strong>")
	s = boldUnderscorePattern.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicStarPattern.ReplaceAllString(s, "<em>$1</em>")
	s = italicUnderPattern.ReplaceAllString(s, "<em>$1</em>")
	s = linkPattern.ReplaceAllString(s, "$1")
	s = codePattern.ReplaceAllString(s, "<code>$1</code>")
	return s
}

// PlainTextReport strips markup for export.
//
// # Description
//
// Removes HTML tags and bold, italic and code markers, collapses runs of
// three or more newlines to two and trims the result.
func PlainTextReport(content string) string {
	s := tagPattern.ReplaceAllString(content, "")
	s = boldStarPattern.ReplaceAllString(s, "$1")
	s = italicStarPattern.ReplaceAllString(s, "$1")
	s = plainCodeMarker.ReplaceAllString(s, "$1")
	s = extraNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ReportFilename returns the export file name for a report produced on the
// date of now, e.g. "x-profile-report-2025-11-02.txt".
func ReportFilename(now time.Time) string {
	return "x-profile-report-" + now.Format("2006-01-02") + ".txt"
}
