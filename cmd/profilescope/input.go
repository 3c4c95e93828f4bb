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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/profilescope/pkg/ux"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// InputReader Interface
// =============================================================================

// InputReader reads one line of user input at a time.
//
// # Outputs
//
// ReadLine returns the trimmed line, or io.EOF when input is exhausted.
type InputReader interface {
	ReadLine() (string, error)
}

// newInputReader returns an interactive reader with history when stdin
// and stderr are terminals, and a line reader otherwise.
func newInputReader(prompt string, maxHistory int, plain bool) InputReader {
	if !plain && ux.IsTerminal(os.Stdin) && ux.IsTerminal(os.Stderr) {
		return NewInteractiveInputReader(prompt, maxHistory)
	}
	return NewLineReader(os.Stdin, os.Stderr, prompt)
}

// =============================================================================
// LineReader
// =============================================================================

// LineReader implements InputReader over any io.Reader. Used for piped
// input and --plain.
//
// # Thread Safety
//
// Not thread-safe.
type LineReader struct {
	reader *bufio.Reader
	prompt io.Writer
	text   string
}

// NewLineReader creates a reader that writes text to prompt before each
// line. prompt may be nil.
func NewLineReader(r io.Reader, prompt io.Writer, text string) *LineReader {
	return &LineReader{reader: bufio.NewReader(r), prompt: prompt, text: text}
}

// ReadLine reads until newline. A final line without a newline is
// returned before io.EOF.
func (r *LineReader) ReadLine() (string, error) {
	if r.prompt != nil {
		fmt.Fprint(r.prompt, r.text)
	}
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// InteractiveInputReader
// =============================================================================

// InteractiveInputReader implements InputReader with a bubbletea text
// input and up/down history navigation.
//
// # Description
//
// Each ReadLine runs a short-lived bubbletea program on stderr. Enter
// submits. Ctrl+C clears the line and returns "". Ctrl+D on an empty
// line returns io.EOF.
//
// # Limitations
//
//   - History is kept in memory only
type InteractiveInputReader struct {
	prompt     string
	history    []string
	maxHistory int
}

// inputModel is the bubbletea model for one line of input.
type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	eof          bool
}

// NewInteractiveInputReader creates a reader keeping up to maxHistory
// entries. A non-positive maxHistory disables history.
func NewInteractiveInputReader(prompt string, maxHistory int) *InteractiveInputReader {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &InteractiveInputReader{
		prompt:     prompt,
		history:    make([]string, 0, maxHistory),
		maxHistory: maxHistory,
	}
}

// ReadLine reads a single line with history support.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	p := tea.NewProgram(newInputModel(r.prompt, r.history), tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if result.eof {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

// addToHistory appends input, skipping an immediate repeat and dropping
// the oldest entry past maxHistory.
func (r *InteractiveInputReader) addToHistory(input string) {
	if r.maxHistory == 0 {
		return
	}
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

func newInputModel(prompt string, history []string) inputModel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = "@handle or @a vs @b"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return inputModel{
		textInput:    ti,
		history:      history,
		historyIndex: -1,
	}
}

// Init starts the cursor blink.
func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key presses.
func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			if m.textInput.Value() == "" {
				m.eof = true
				m.done = true
				return m, tea.Quit
			}
			return m, nil

		case tea.KeyUp:
			if len(m.history) == 0 {
				return m, nil
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
			return m, nil

		case tea.KeyDown:
			if m.historyIndex == -1 {
				return m, nil
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the prompt.
func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

var (
	_ InputReader = (*LineReader)(nil)
	_ InputReader = (*InteractiveInputReader)(nil)
	_ tea.Model   = inputModel{}
)
