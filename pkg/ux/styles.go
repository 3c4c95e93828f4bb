// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders profile research reports for the terminal.
//
// It folds streamed chunks into a ReportState, splits report text into
// titled sections and renders them with lipgloss styles, or as plain text
// when output is not a terminal.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ProfileScope palette
var (
	ColorAccent    = lipgloss.Color("#1D9BF0") // X blue - headings, highlights
	ColorAccentDim = lipgloss.Color("#1A8CD8") // Secondary accent - borders
	ColorText      = lipgloss.Color("#E7E9EA") // Primary text
	ColorSlate     = lipgloss.Color("#71767B") // Muted text, sources

	ColorSuccess = lipgloss.Color("#00BA7C")
	ColorWarning = lipgloss.Color("#FFD400")
	ColorError   = lipgloss.Color("#F4212E")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title    lipgloss.Style
	Heading  lipgloss.Style
	Subhead  lipgloss.Style
	Bold     lipgloss.Style
	Italic   lipgloss.Style
	Code     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Bullet   lipgloss.Style
	Progress lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Heading:  lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).MarginTop(1),
	Subhead:  lipgloss.NewStyle().Bold(true).Foreground(ColorText),
	Bold:     lipgloss.NewStyle().Bold(true),
	Italic:   lipgloss.NewStyle().Italic(true),
	Code:     lipgloss.NewStyle().Foreground(ColorAccentDim),
	Muted:    lipgloss.NewStyle().Foreground(ColorSlate),
	Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),
	Bullet:   lipgloss.NewStyle().Foreground(ColorAccent),
	Progress: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorAccentDim).Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconSearch  Icon = "⌕"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
	IconPulse   Icon = "●"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending, IconSearch:
		return Styles.Muted.Render(string(i))
	case IconBullet, IconPulse:
		return Styles.Bullet.Render(string(i))
	default:
		return string(i)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ShouldStyle reports whether styled output should be written to f. NO_COLOR
// disables styling regardless of the terminal.
func ShouldStyle(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(f)
}

// =============================================================================
// Status Lines
// =============================================================================

// Success writes a success line to w.
func Success(w io.Writer, plain bool, text string) {
	statusLine(w, plain, IconSuccess, text)
}

// Warning writes a warning line to w.
func Warning(w io.Writer, plain bool, text string) {
	statusLine(w, plain, IconWarning, text)
}

// Error writes an error line to w.
func Error(w io.Writer, plain bool, text string) {
	statusLine(w, plain, IconError, text)
}

func statusLine(w io.Writer, plain bool, icon Icon, text string) {
	if plain {
		fmt.Fprintf(w, "%s %s\n", icon, text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", icon.Render(), text)
}
