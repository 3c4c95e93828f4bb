// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AleutianAI/profilescope/pkg/analyzer"
	"github.com/AleutianAI/profilescope/pkg/ux"
	"github.com/AleutianAI/profilescope/pkg/validation"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// Messages
// =============================================================================

// snapshotMsg carries a session snapshot into the bubbletea loop.
type snapshotMsg analyzer.Snapshot

// finishedMsg tells the model the analysis has returned.
type finishedMsg struct{}

// =============================================================================
// reportModel
// =============================================================================

// reportModel redraws the streaming report in place.
//
// # Description
//
// The model only renders; the analysis runs in the caller's goroutine and
// feeds snapshots through Program.Send. Ctrl+C cancels the analysis but
// does not quit: the program exits on finishedMsg so the final snapshot
// is never lost.
type reportModel struct {
	renderer ux.ReportRenderer
	spinner  spinner.Model
	cancel   func()

	handles    []string
	state      ux.ReportState
	cancelling bool
	done       bool
}

func newReportModel(cancel func()) reportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ux.Styles.Bullet

	return reportModel{
		renderer: ux.NewTerminalRenderer(),
		spinner:  s,
		cancel:   cancel,
	}
}

// Init starts the spinner.
func (m reportModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies snapshots and key presses.
func (m reportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case snapshotMsg:
		m.handles = msg.Handles
		m.state = msg.Report
		return m, nil

	case finishedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the header line and the report so far.
func (m reportModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	switch {
	case m.cancelling:
		b.WriteString("Cancelling...")
	case len(m.handles) > 0:
		fmt.Fprintf(&b, "Researching %s", validation.FormatUsernames(m.handles))
	default:
		b.WriteString("Starting analysis...")
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderer.Render(m.state, true))
	return b.String()
}

// =============================================================================
// liveDisplay
// =============================================================================

// liveDisplay runs a reportModel program for the duration of one analysis
// and prints the final report once it exits.
type liveDisplay struct {
	program *tea.Program
	exited  chan struct{}

	stdout io.Writer
	stderr io.Writer
}

func newLiveDisplay(stdout, stderr io.Writer, cancel func()) *liveDisplay {
	d := &liveDisplay{
		program: tea.NewProgram(newReportModel(cancel), tea.WithOutput(stdout)),
		exited:  make(chan struct{}),
		stdout:  stdout,
		stderr:  stderr,
	}

	go func() {
		defer close(d.exited)
		if _, err := d.program.Run(); err != nil {
			slog.Debug("live view exited", "error", err)
		}
	}()
	return d
}

func (d *liveDisplay) update(snap analyzer.Snapshot) {
	d.program.Send(snapshotMsg(snap))
}

func (d *liveDisplay) finish(result analyzer.Result, err error) {
	d.program.Send(finishedMsg{})
	<-d.exited

	if result.Canceled {
		return
	}
	if len(result.Chunks) > 0 {
		fmt.Fprintln(d.stdout, ux.NewTerminalRenderer().Render(result.Report, false))
	}
	if err != nil {
		ux.Error(d.stderr, false, err.Error())
	}
}

var (
	_ tea.Model = reportModel{}
	_ display   = (*liveDisplay)(nil)
	_ display   = (*printerDisplay)(nil)
)
